package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/fmenezes/anxiousbot/internal/netutil/circuit"
)

func TestRegistry_RecordDealTransition_CountsByAction(t *testing.T) {
	r := NewRegistry(prometheus.NewRegistry())

	r.RecordDealTransition("pair", "BTC/USDT|kraken|binance", "open")
	r.RecordDealTransition("pair", "BTC/USDT|kraken|binance", "noop")

	require.Equal(t, float64(1), testCounterValue(t, r.DealsOpened.WithLabelValues("pair", "BTC/USDT|kraken|binance")))
}

func TestRegistry_RecordMatch_ObservesProfitAndLatency(t *testing.T) {
	r := NewRegistry(prometheus.NewRegistry())
	r.RecordMatch("trio", 4.2, 15*time.Millisecond)

	// Each histogram holds exactly the one observation just recorded.
	var profit, latency dto.Metric
	require.NoError(t, r.MatchProfit.WithLabelValues("trio").(prometheus.Metric).Write(&profit))
	require.EqualValues(t, 1, profit.GetHistogram().GetSampleCount())
	require.InDelta(t, 4.2, profit.GetHistogram().GetSampleSum(), 1e-9)
	require.NoError(t, r.MatchLatency.WithLabelValues("trio").(prometheus.Metric).Write(&latency))
	require.EqualValues(t, 1, latency.GetHistogram().GetSampleCount())
	require.InDelta(t, 0.015, latency.GetHistogram().GetSampleSum(), 1e-9)
}

func TestRegistry_CacheHitMiss_IncrementIndependently(t *testing.T) {
	r := NewRegistry(prometheus.NewRegistry())
	r.RecordCacheHit("order_book")
	r.RecordCacheHit("order_book")
	r.RecordCacheMiss("order_book")

	require.Equal(t, float64(2), testCounterValue(t, r.CacheHits.WithLabelValues("order_book")))
	require.Equal(t, float64(1), testCounterValue(t, r.CacheMisses.WithLabelValues("order_book")))
}

func TestRegistry_ObserveBreaker_SetsStateGauge(t *testing.T) {
	r := NewRegistry(prometheus.NewRegistry())
	r.ObserveBreaker("kraken", circuit.StateOpen)

	gauge, err := r.BreakerState.GetMetricWithLabelValues("kraken")
	require.NoError(t, err)
	require.Equal(t, float64(circuit.StateOpen), testGaugeValue(t, gauge))
}

func testCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.(prometheus.Metric).Write(&m))
	return m.GetCounter().GetValue()
}

func testGaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.(prometheus.Metric).Write(&m))
	return m.GetGauge().GetValue()
}
