package results

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/suidriver/internal/api"
)

func passStep(label string) api.StepResult {
	return api.StepResult{Label: label, Status: api.StatusPassed, RawReport: "<ok/>"}
}

func failStep(label, assertion string) api.StepResult {
	return api.StepResult{
		Label:     label,
		Status:    api.StatusFailed,
		RawReport: "<fail/>",
		Failures: []api.FailureRecord{{
			StepLabel:     label,
			AssertionName: assertion,
			Messages:      []string{"expected 200"},
			RawStepReport: "<fail/>",
		}},
	}
}

func TestCollector_BuildsTreeInEngineOrder(t *testing.T) {
	c := NewCollector("p1", "Project")
	tc1 := api.CaseRef{Suite: "TS1", Case: "TC1"}
	tc2 := api.CaseRef{Suite: "TS1", Case: "TC2"}
	tc3 := api.CaseRef{Suite: "TS0", Case: "TC3"}

	for _, ref := range []api.CaseRef{tc1, tc2, tc3} {
		require.NoError(t, c.CaseStarted(ref))
		require.NoError(t, c.StepFinished(ref, passStep("b")))
		require.NoError(t, c.StepFinished(ref, passStep("a")))
		require.NoError(t, c.CaseFinished(ref, api.StatusPassed))
	}

	tree := c.CurrentResultTree()
	require.Len(t, tree.Children, 2)
	assert.Equal(t, "TS1", tree.Children[0].Label)
	assert.Equal(t, "TS0", tree.Children[1].Label)
	require.Len(t, tree.Children[0].Children, 2)
	assert.Equal(t, "TC1", tree.Children[0].Children[0].Label)
	assert.Equal(t, "TC2", tree.Children[0].Children[1].Label)
	steps := tree.Children[0].Children[0].Children
	require.Len(t, steps, 2)
	assert.Equal(t, "b", steps[0].Label)
	assert.Equal(t, "a", steps[1].Label)
}

func TestCollector_InProgressCaseIsUnknown(t *testing.T) {
	c := NewCollector("p1", "Project")
	ref := api.CaseRef{Suite: "S", Case: "C"}
	require.NoError(t, c.CaseStarted(ref))
	require.NoError(t, c.StepFinished(ref, passStep("s1")))

	tree := c.CurrentResultTree()
	assert.Equal(t, api.StatusUnknown, tree.Children[0].Children[0].Status)
}

func TestCollector_CurrentResultTreeIsACopy(t *testing.T) {
	c := NewCollector("p1", "Project")
	ref := api.CaseRef{Suite: "S", Case: "C"}
	require.NoError(t, c.CaseStarted(ref))

	tree := c.CurrentResultTree()
	tree.Children[0].Label = "mutated"

	assert.Equal(t, "S", c.CurrentResultTree().Children[0].Label)
}

func TestCollector_FinalizeAggregates(t *testing.T) {
	tests := []struct {
		name          string
		caseStatus    api.Status
		steps         []api.StepResult
		wantCase      api.Status
		wantSuite     api.Status
		wantNoAsserts bool
	}{
		{
			name:       "all passed",
			caseStatus: api.StatusPassed,
			steps:      []api.StepResult{passStep("s1"), passStep("s2")},
			wantCase:   api.StatusPassed,
			wantSuite:  api.StatusPassed,
		},
		{
			name:       "failing step fails passed case",
			caseStatus: api.StatusPassed,
			steps:      []api.StepResult{passStep("s1"), failStep("s2", "Valid HTTP Status Codes")},
			wantCase:   api.StatusFailed,
			wantSuite:  api.StatusFailed,
		},
		{
			name:       "error case is not downgraded",
			caseStatus: api.StatusError,
			steps:      []api.StepResult{failStep("s1", "XPath Match")},
			wantCase:   api.StatusError,
			wantSuite:  api.StatusFailed,
		},
		{
			name:          "failed without assertions",
			caseStatus:    api.StatusFailed,
			steps:         []api.StepResult{passStep("s1")},
			wantCase:      api.StatusFailed,
			wantSuite:     api.StatusFailed,
			wantNoAsserts: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCollector("p1", "Project")
			ref := api.CaseRef{Suite: "S", Case: "C"}
			require.NoError(t, c.CaseStarted(ref))
			for _, s := range tt.steps {
				require.NoError(t, c.StepFinished(ref, s))
			}
			require.NoError(t, c.CaseFinished(ref, tt.caseStatus))

			tree, err := c.Finalize(false)
			require.NoError(t, err)

			suite := tree.Children[0]
			assert.Equal(t, tt.wantCase, suite.Children[0].Status)
			assert.Equal(t, tt.wantSuite, suite.Status)
			assert.Equal(t, tt.wantSuite, tree.Status)
			assert.Equal(t, tt.wantNoAsserts, suite.Children[0].FailedWithoutAssertions)
			if tt.wantNoAsserts {
				assert.Equal(t, []string{"S/C"}, c.FailedWithoutAssertions())
			} else {
				assert.Empty(t, c.FailedWithoutAssertions())
			}
		})
	}
}

func TestCollector_FailuresKeepReportOrder(t *testing.T) {
	c := NewCollector("p1", "Project")
	ref := api.CaseRef{Suite: "S", Case: "C"}
	require.NoError(t, c.CaseStarted(ref))
	require.NoError(t, c.StepFinished(ref, failStep("first", "A1")))
	require.NoError(t, c.StepFinished(ref, failStep("second", "A2")))
	require.NoError(t, c.CaseFinished(ref, api.StatusFailed))

	failures := c.Failures()
	require.Len(t, failures, 2)
	assert.Equal(t, "A1", failures[0].AssertionName)
	assert.Equal(t, "A2", failures[1].AssertionName)
	assert.Empty(t, c.FailedWithoutAssertions())
}

func TestCollector_FinalizeExactlyOnce(t *testing.T) {
	c := NewCollector("p1", "Project")
	ref := api.CaseRef{Suite: "S", Case: "C"}
	require.NoError(t, c.CaseStarted(ref))

	tree, err := c.Finalize(true)
	require.NoError(t, err)
	assert.True(t, tree.Partial)
	assert.True(t, c.Finalized())

	_, err = c.Finalize(false)
	assert.ErrorIs(t, err, ErrFinalized)
	assert.True(t, c.CurrentResultTree().Partial)
}

func TestCollector_RejectsEventsAfterFinalize(t *testing.T) {
	c := NewCollector("p1", "Project")
	ref := api.CaseRef{Suite: "S", Case: "C"}
	_, err := c.Finalize(false)
	require.NoError(t, err)

	err = c.CaseStarted(ref)
	assert.ErrorIs(t, err, ErrFinalized)
	assert.True(t, api.IsKind(err, api.KindInvalidState))
	assert.ErrorIs(t, c.StepFinished(ref, passStep("s")), ErrFinalized)
	assert.ErrorIs(t, c.CaseFinished(ref, api.StatusPassed), ErrFinalized)
	assert.Empty(t, c.CurrentResultTree().Children)
}

func TestCollector_RejectionsAreIndependent(t *testing.T) {
	c := NewCollector("p1", "Project")
	_, err := c.Finalize(false)
	require.NoError(t, err)
	ref := api.CaseRef{Suite: "S", Case: "C"}

	var first *api.TaskError
	require.ErrorAs(t, c.CaseStarted(ref), &first)
	first.RawReport = "<report/>"
	first.Message = "changed"

	var second *api.TaskError
	require.ErrorAs(t, c.CaseStarted(ref), &second)
	assert.NotSame(t, first, second)
	assert.Empty(t, second.RawReport)
	assert.Equal(t, "CaseStarted rejected", second.Message)
	assert.ErrorIs(t, second, ErrFinalized)
}

func TestCollector_StepForUnstartedCase(t *testing.T) {
	c := NewCollector("p1", "Project")
	ref := api.CaseRef{Suite: "S", Case: "C"}

	require.NoError(t, c.StepFinished(ref, passStep("s1")))
	require.NoError(t, c.CaseFinished(ref, api.StatusPassed))

	tree := c.CurrentResultTree()
	require.Len(t, tree.Children, 1)
	assert.Len(t, tree.Children[0].Children[0].Children, 1)
}

func TestCollector_EmptyProjectStaysUnknown(t *testing.T) {
	c := NewCollector("p1", "Project")
	tree, err := c.Finalize(false)
	require.NoError(t, err)
	assert.Equal(t, api.StatusUnknown, tree.Status)
}

func TestCollector_ConcurrentReadsDuringEvents(t *testing.T) {
	c := NewCollector("p1", "Project")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			ref := api.CaseRef{Suite: "S", Case: "C"}
			_ = c.CaseStarted(ref)
			_ = c.StepFinished(ref, passStep("s"))
		}
	}()
	for i := 0; i < 200; i++ {
		_ = c.CurrentResultTree()
	}
	wg.Wait()

	assert.Len(t, c.CurrentResultTree().Children[0].Children[0].Children, 200)
}
