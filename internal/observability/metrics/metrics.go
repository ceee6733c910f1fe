package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ChatMetrics exposes counters/histograms for agent chat turns.
type ChatMetrics struct {
	turnsTotal  *prometheus.CounterVec
	turnLatency *prometheus.HistogramVec
}

func NewChatMetrics(reg prometheus.Registerer) *ChatMetrics {
	m := &ChatMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "innervoice",
			Subsystem: "chat",
			Name:      "turns_total",
			Help:      "Total chat turns by model and outcome",
		}, []string{"model", "status"}),
		turnLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "innervoice",
			Subsystem: "chat",
			Name:      "turn_latency_seconds",
			Help:      "Latency of chat completions",
			Buckets:   prometheus.DefBuckets,
		}, []string{"model"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.turnLatency)
	return m
}

func (m *ChatMetrics) RecordChat(model string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(model, outcome(err)).Inc()
	m.turnLatency.WithLabelValues(model).Observe(duration.Seconds())
}

// PipelineMetrics exposes counters/histograms for protocol generation stages.
type PipelineMetrics struct {
	stagesTotal   *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
}

func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	m := &PipelineMetrics{
		stagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "innervoice",
			Subsystem: "pipeline",
			Name:      "stages_total",
			Help:      "Total pipeline stage executions by outcome",
		}, []string{"stage", "status"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "innervoice",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 60},
		}, []string{"stage"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.stagesTotal, m.stageDuration)
	return m
}

func (m *PipelineMetrics) RecordStage(stage string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.stagesTotal.WithLabelValues(stage, outcome(err)).Inc()
	m.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// SynthesisMetrics exposes counters/histograms for audio synthesis items.
type SynthesisMetrics struct {
	itemsTotal   *prometheus.CounterVec
	itemDuration *prometheus.HistogramVec
}

func NewSynthesisMetrics(reg prometheus.Registerer) *SynthesisMetrics {
	m := &SynthesisMetrics{
		itemsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "innervoice",
			Subsystem: "synthesis",
			Name:      "items_total",
			Help:      "Total synthesis items by kind and outcome",
		}, []string{"kind", "status"}),
		itemDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "innervoice",
			Subsystem: "synthesis",
			Name:      "item_duration_seconds",
			Help:      "Duration of synthesis calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.itemsTotal, m.itemDuration)
	return m
}

func (m *SynthesisMetrics) RecordSynthesis(kind string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.itemsTotal.WithLabelValues(kind, outcome(err)).Inc()
	m.itemDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
