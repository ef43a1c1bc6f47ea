package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Operations(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New("tagstate", reg)

	m.ObserveOperation("vote", "", time.Millisecond)
	m.ObserveOperation("vote", "", time.Millisecond)
	m.ObserveOperation("vote", "VALIDATION_FAILED", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.OperationsApplied.WithLabelValues("vote")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationsRejected.WithLabelValues("vote", "VALIDATION_FAILED")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.ApplyDuration))

	expected := `
# HELP tagstate_operations_applied_total Operations applied, by kind.
# TYPE tagstate_operations_applied_total counter
tagstate_operations_applied_total{kind="vote"} 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "tagstate_operations_applied_total"))
}

func TestMetrics_Blocks(t *testing.T) {
	m := New("tagstate", prometheus.NewRegistry())

	m.ObserveBlock(7, 2, 10)
	m.ObservePop(6, 1, 8)
	m.ObserveHalt()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.BlocksApplied))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BlocksPopped))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FatalHalts))
	assert.Equal(t, 6.0, testutil.ToFloat64(m.HeadBlock))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UndoDepth))
	assert.Equal(t, 8.0, testutil.ToFloat64(m.TagEntries))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveOperation("vote", "", time.Second)
		m.ObserveBlock(1, 1, 1)
		m.ObservePop(1, 1, 1)
		m.ObserveHalt()
	})
}
