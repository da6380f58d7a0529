package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestProbesTotalIncrementsByResult(t *testing.T) {
	r := NewRecorder()
	r.ProbesTotal.WithLabelValues("ok").Inc()
	r.ProbesTotal.WithLabelValues("ok").Inc()
	r.ProbesTotal.WithLabelValues("nok").Inc()

	assert.Equal(t, float64(2), testutil.ToFloat64(r.ProbesTotal.WithLabelValues("ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.ProbesTotal.WithLabelValues("nok")))
}

func TestProbeDurationObserves(t *testing.T) {
	r := NewRecorder()
	r.ProbeDuration.Observe(0.25)
	assert.Equal(t, 1, testutil.CollectAndCount(r.ProbeDuration))
}
