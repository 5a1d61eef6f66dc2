package safety

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/switchyard-dev/switchyard/pkg/domain"
)

func TestRecordInvocation(t *testing.T) {
	t.Run("global limit", func(t *testing.T) {
		m := New(domain.Limits{MaxNodeInvocations: 2}, nil)
		path := &domain.Path{ID: "p1"}
		node := &domain.Node{Name: "work", Type: "state"}

		require.NoError(t, m.RecordInvocation(path, node))
		require.NoError(t, m.RecordInvocation(path, node))

		err := m.RecordInvocation(path, node)
		var lerr *domain.InvocationLimitError
		require.ErrorAs(t, err, &lerr)
		assert.Equal(t, "work", lerr.Node)
		assert.Equal(t, 3, lerr.Count)
		assert.Equal(t, 2, lerr.Limit)
	})

	t.Run("node attribute overrides the global limit", func(t *testing.T) {
		m := New(domain.Limits{MaxNodeInvocations: 100}, nil)
		path := &domain.Path{ID: "p1"}
		node := &domain.Node{Name: "retry", Type: "task", Attributes: []domain.Attribute{
			{Name: "maxInvocations", Value: float64(2)},
		}}

		require.NoError(t, m.RecordInvocation(path, node))
		require.NoError(t, m.RecordInvocation(path, node))
		assert.Error(t, m.RecordInvocation(path, node))
	})

	t.Run("counts are per node", func(t *testing.T) {
		m := New(domain.Limits{MaxNodeInvocations: 1}, nil)
		path := &domain.Path{ID: "p1"}
		require.NoError(t, m.RecordInvocation(path, &domain.Node{Name: "a"}))
		require.NoError(t, m.RecordInvocation(path, &domain.Node{Name: "b"}))
		assert.Error(t, m.RecordInvocation(path, &domain.Node{Name: "a"}))
	})
}

func TestDetectCycle(t *testing.T) {
	m := New(domain.Limits{CycleWindow: 10}, nil)

	t.Run("alternating pair is a cycle", func(t *testing.T) {
		path := &domain.Path{StateTransitions: []string{"s1", "s2", "s1"}}
		err := m.RecordStateTransition(path, "s2")
		var cerr *domain.CycleError
		require.ErrorAs(t, err, &cerr)
		assert.Equal(t, []string{"s1", "s2"}, cerr.Pattern)
	})

	t.Run("longer repeated pattern", func(t *testing.T) {
		path := &domain.Path{StateTransitions: []string{"a", "b", "c", "a", "b"}}
		assert.Error(t, m.RecordStateTransition(path, "c"))
	})

	t.Run("non-repeating walk passes", func(t *testing.T) {
		path := &domain.Path{}
		for _, s := range []string{"a", "b", "c", "d", "e", "f"} {
			require.NoError(t, m.RecordStateTransition(path, s))
		}
	})

	t.Run("revisit without a repeated pattern passes", func(t *testing.T) {
		path := &domain.Path{StateTransitions: []string{"a", "b", "c"}}
		assert.NoError(t, m.RecordStateTransition(path, "a"))
	})

	t.Run("pattern outside the window is forgotten", func(t *testing.T) {
		tight := New(domain.Limits{CycleWindow: 3}, nil)
		path := &domain.Path{StateTransitions: []string{"s1", "s2", "s1"}}
		// Window of 3 can only see patterns of length <= 1, which are
		// never checked.
		assert.NoError(t, tight.RecordStateTransition(path, "s2"))
	})
}

func TestCheckTimeout(t *testing.T) {
	m := New(domain.Limits{Timeout: time.Minute}, nil)
	started := time.Now()

	assert.NoError(t, m.CheckTimeout(domain.Metadata{StartedAt: started}, started.Add(30*time.Second), "work"))
	assert.NoError(t, m.CheckTimeout(domain.Metadata{}, started, "work"), "zero start time disables the check")

	err := m.CheckTimeout(domain.Metadata{StartedAt: started}, started.Add(2*time.Minute), "work")
	var terr *domain.TimeoutError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "work", terr.Node)
	assert.Equal(t, time.Minute, terr.Limit)
}

func TestCheckStepBudget(t *testing.T) {
	m := New(domain.Limits{MaxSteps: 3}, nil)
	assert.NoError(t, m.CheckStepBudget(2))

	err := m.CheckStepBudget(3)
	var berr *domain.StepBudgetError
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, 3, berr.Budget)
}

func TestLimitsAreNormalized(t *testing.T) {
	m := New(domain.Limits{}, nil)
	assert.Equal(t, domain.DefaultLimits(), m.Limits())
}
