package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency: сколько времени заняла обработка сообщения (включая коннектор)
	MessageDuration *prometheus.HistogramVec

	// Traffic: сообщения по распознанным интентам
	MessagesTotal *prometheus.CounterVec

	// Вердикты авторизации по ролям и причинам
	DecisionsTotal *prometheus.CounterVec

	// Errors: классификация сбоев исполнения
	ExecErrorsTotal *prometheus.CounterVec

	// Saturation: заполненность аудит-буфера (backpressure)
	AuditBufferFill prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		MessageDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chatops_message_duration_seconds",
			Help:    "Histogram of message handling latencies.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"intent", "status"}),

		MessagesTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "chatops_messages_total",
			Help: "Total number of processed chat messages.",
		}, []string{"intent"}),

		DecisionsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "chatops_authz_decisions_total",
			Help: "Authorization verdicts by role and deny reason.",
		}, []string{"role", "verdict", "reason"}),

		ExecErrorsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "chatops_exec_errors_total",
			Help: "Connector call failures by error kind.",
		}, []string{"kind"}),

		AuditBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "chatops_audit_buffer_utilization",
			Help: "Current number of events in the audit buffer.",
		}),
	}
}
