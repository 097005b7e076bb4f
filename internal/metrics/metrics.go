package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics счетчики и гистограммы работы генератора и трекера
type Metrics struct {
	SignalsEmitted  *prometheus.CounterVec // labels: strategy, direction
	SignalsRejected *prometheus.CounterVec // labels: reason
	SignalsClosed   *prometheus.CounterVec // labels: strategy, status
	TicksTotal      prometheus.Counter
	AlertsTotal     *prometheus.CounterVec // labels: type
	FetchErrors     prometheus.Counter
	EvaluateDur     prometheus.Histogram
	ActiveSignals   prometheus.Gauge
}

// New создает метрики и регистрирует их в reg.
// nil означает отдельный реестр, удобный в тестах.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		SignalsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalflow_signals_emitted_total",
			Help: "Сигналы, прошедшие все фильтры",
		}, []string{"strategy", "direction"}),
		SignalsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalflow_signals_rejected_total",
			Help: "Отклоненные оценки по причине",
		}, []string{"reason"}),
		SignalsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalflow_signals_closed_total",
			Help: "Закрытые сигналы по статусу",
		}, []string{"strategy", "status"}),
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalflow_ticks_total",
			Help: "Обработанные тикеры",
		}),
		AlertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalflow_alerts_total",
			Help: "Алерты памп/дамп",
		}, []string{"type"}),
		FetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalflow_fetch_errors_total",
			Help: "Ошибки загрузки свечей",
		}),
		EvaluateDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalflow_evaluate_duration_seconds",
			Help:    "Длительность оценки одного символа",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		ActiveSignals: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalflow_active_signals",
			Help: "Активные сигналы на сопровождении",
		}),
	}

	reg.MustRegister(
		m.SignalsEmitted, m.SignalsRejected, m.SignalsClosed, m.TicksTotal,
		m.AlertsTotal, m.FetchErrors, m.EvaluateDur, m.ActiveSignals,
	)
	return m
}

// ObserveEvaluate фиксирует длительность оценки начиная с start
func (m *Metrics) ObserveEvaluate(start time.Time) {
	m.EvaluateDur.Observe(time.Since(start).Seconds())
}

// Serve поднимает HTTP эндпоинт /metrics для gatherer
func Serve(addr string, gatherer prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
