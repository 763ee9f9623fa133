package results

import (
	"github.com/giantswarm/suidriver/internal/api"
)

// aggregate derives node statuses bottom-up. A node with a failing child is
// FAILED unless it is already ERROR. Cases keep the status the engine
// reported otherwise; suites and the project are PASSED only when every
// child passed.
func aggregate(node *api.ResultNode) {
	if len(node.Children) == 0 {
		return
	}

	anyFailed := false
	allPassed := true
	for _, child := range node.Children {
		aggregate(child)
		if child.Status.IsFailure() {
			anyFailed = true
		}
		if child.Status != api.StatusPassed {
			allPassed = false
		}
	}

	switch {
	case node.Status == api.StatusError:
	case anyFailed:
		node.Status = api.StatusFailed
	case node.Kind == api.KindCase || node.Kind == api.KindStep:
		// the engine's verdict stands
	case allPassed:
		node.Status = api.StatusPassed
	default:
		node.Status = api.StatusUnknown
	}
}
