package prometrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zhima-Mochi/minishop-cart/internal/observability"
)

func TestCounterRegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg, "", "")

	c1 := r.Counter("widgets_total", "help", "outcome")
	c2 := r.Counter("widgets_total", "help", "outcome")
	c1.Add(1, observability.L("outcome", "ok"))
	c2.Bind(observability.L("outcome", "ok")).Add(2)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	assert.Equal(t, float64(3), families[0].GetMetric()[0].GetCounter().GetValue())
}

func TestRegistriesShareRegisterer(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := New(reg, "", "")
	b := New(reg, "", "")

	a.Counter("shared_total", "help").Add(1)
	b.Counter("shared_total", "help").Add(1)

	assert.Equal(t, 2, int(testutil.ToFloat64(a.Counter("shared_total", "help").(*counter).v)))
}

func TestInstruments(t *testing.T) {
	reg := prometheus.NewRegistry()
	counters, histograms := Instruments(New(reg, "", ""))

	for _, key := range []observability.MetricKey{
		observability.MUsecaseRequests,
		observability.MHTTPRequests,
		observability.MCartSweeps,
		observability.MCartSessionsExpired,
		observability.MCartUnitsReleased,
	} {
		assert.NotNil(t, counters[key], key)
	}
	assert.NotNil(t, histograms[observability.MUsecaseDuration])

	counters[observability.MCartSweeps].Add(1)
	histograms[observability.MUsecaseDuration].Observe(0.01, observability.L("use_case", "cart.add"))

	count, err := testutil.GatherAndCount(reg, "cart_sweeps_total", "usecase_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
