package adapter

import (
	"fmt"
	"slices"
	"strings"

	"github.com/giantswarm/suidriver/internal/api"
	"github.com/giantswarm/suidriver/internal/project"
)

// selection is what a run executes: cases, a suite, or the whole project
// when both are empty.
type selection struct {
	cases []api.CaseRef
	suite string
}

func (s selection) String() string {
	switch {
	case len(s.cases) > 0:
		names := make([]string, len(s.cases))
		for i, c := range s.cases {
			names[i] = c.String()
		}
		return "cases [" + strings.Join(names, ", ") + "]"
	case s.suite != "":
		return fmt.Sprintf("suite %q", s.suite)
	default:
		return "all suites"
	}
}

// resolveSelection applies the precedence cases > suite > project. Requested
// cases are matched in project order; when a suite is requested only its
// cases are considered.
func resolveSelection(meta *project.Project, cases []string, suite string) (selection, error) {
	if len(cases) > 0 {
		var matched []api.CaseRef
		for _, s := range meta.Suites {
			if suite != "" && s.Name != suite {
				continue
			}
			for _, c := range s.Cases {
				if slices.Contains(cases, c.Name) {
					matched = append(matched, api.CaseRef{Suite: s.Name, Case: c.Name})
				}
			}
		}
		if len(matched) > 0 {
			return selection{cases: matched}, nil
		}
	}

	if suite != "" {
		if _, ok := meta.Suite(suite); !ok {
			return selection{}, fmt.Errorf("test suite %q not found in project %q", suite, meta.Name)
		}
		return selection{suite: suite}, nil
	}
	return selection{}, nil
}
