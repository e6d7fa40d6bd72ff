package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Stage names recorded by the tutor pipeline.
const (
	StageLLM  = "llm"
	StageTTS  = "tts"
	StageTurn = "turn"
)

// Metrics groups all Prometheus instruments used by the service. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry
	stages   *StageWindow

	ActiveSessions prometheus.Gauge
	Turns          *prometheus.CounterVec
	LLMErrors      *prometheus.CounterVec
	TTSOutcomes    *prometheus.CounterVec
	TTSAttempts    *prometheus.CounterVec
	AudioPruned    prometheus.Counter
	StageLatency   *prometheus.HistogramVec
}

func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		stages:   NewStageWindow(256),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of stored tutoring sessions.",
		}),
		Turns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Handled conversation turns by kind.",
		}, []string{"kind"}),
		LLMErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_errors_total",
			Help:      "Language model failures by scenario.",
		}, []string{"scenario"}),
		TTSOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tts_outcomes_total",
			Help:      "Synthesis outcomes by provider and status.",
		}, []string{"provider", "outcome"}),
		TTSAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tts_attempts_total",
			Help:      "Individual synthesis attempts by provider and result.",
		}, []string{"provider", "result"}),
		AudioPruned: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_files_pruned_total",
			Help:      "Audio files removed by retention.",
		}),
		StageLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_latency_ms",
			Help:      "Latency per pipeline stage in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2000, 4000, 8000, 16000},
		}, []string{"stage"}),
	}
}

func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

func (m *Metrics) IncTurn(kind string) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncLLMError(scenario string) {
	if m == nil {
		return
	}
	m.LLMErrors.WithLabelValues(scenario).Inc()
}

func (m *Metrics) IncTTSOutcome(provider, outcome string) {
	if m == nil {
		return
	}
	m.TTSOutcomes.WithLabelValues(provider, outcome).Inc()
}

func (m *Metrics) IncTTSAttempt(provider, result string) {
	if m == nil {
		return
	}
	m.TTSAttempts.WithLabelValues(provider, result).Inc()
}

func (m *Metrics) AddPruned(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.AudioPruned.Add(float64(n))
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	ms := float64(d.Microseconds()) / 1000
	m.StageLatency.WithLabelValues(stage).Observe(ms)
	m.stages.Observe(stage, ms)
}

// StageSnapshot reports rolling per-stage percentiles.
func (m *Metrics) StageSnapshot() StageSnapshot {
	if m == nil {
		return StageSnapshot{GeneratedAt: time.Now().UTC()}
	}
	return m.stages.Snapshot()
}

// Handler serves this registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
