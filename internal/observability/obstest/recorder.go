// Package obstest provides an in-memory Observability for tests.
package obstest

import (
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability"
)

// Recorder captures log entries and metric samples.
type Recorder struct {
	mu      sync.Mutex
	samples map[string]float64
	counts  map[string]int
	logs    *observer.ObservedLogs
	logger  observability.Logger
}

func New() *Recorder {
	core, logs := observer.New(zap.DebugLevel)
	return &Recorder{
		samples: make(map[string]float64),
		counts:  make(map[string]int),
		logs:    logs,
		logger:  zaplogger.New(zap.New(core)),
	}
}

func (r *Recorder) Tracer() observability.Tracer   { return observability.NopTracer() }
func (r *Recorder) Logger() observability.Logger   { return r.logger }
func (r *Recorder) Metrics() observability.Metrics { return r }

func (r *Recorder) Counter(name observability.MetricKey) observability.Counter {
	return &instrument{r: r, name: string(name)}
}

func (r *Recorder) Histogram(name observability.MetricKey) observability.Histogram {
	return &histogram{instrument{r: r, name: string(name)}}
}

// Value returns the summed counter value (or histogram sum) for name and labels.
func (r *Recorder) Value(name observability.MetricKey, labels ...observability.Label) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.samples[seriesKey(string(name), labels)]
}

// Count returns how many samples were recorded for name and labels.
func (r *Recorder) Count(name observability.MetricKey, labels ...observability.Label) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[seriesKey(string(name), labels)]
}

// Logs returns all entries with the given message.
func (r *Recorder) Logs(msg string) []observer.LoggedEntry {
	return r.logs.FilterMessage(msg).All()
}

func (r *Recorder) record(name string, v float64, labels []observability.Label) {
	key := seriesKey(name, labels)
	r.mu.Lock()
	r.samples[key] += v
	r.counts[key]++
	r.mu.Unlock()
}

type instrument struct {
	r      *Recorder
	name   string
	labels []observability.Label
}

func (i *instrument) Add(d float64, labels ...observability.Label) {
	i.r.record(i.name, d, append(append([]observability.Label(nil), i.labels...), labels...))
}

func (i *instrument) Bind(labels ...observability.Label) observability.BoundCounter {
	return &bound{i: &instrument{r: i.r, name: i.name, labels: labels}}
}

type histogram struct{ instrument }

func (h *histogram) Observe(v float64, labels ...observability.Label) {
	h.instrument.Add(v, labels...)
}

func (h *histogram) Bind(labels ...observability.Label) observability.BoundHistogram {
	return &bound{i: &instrument{r: h.r, name: h.name, labels: labels}}
}

type bound struct{ i *instrument }

func (b *bound) Add(d float64)     { b.i.Add(d) }
func (b *bound) Observe(v float64) { b.i.Add(v) }

func seriesKey(name string, labels []observability.Label) string {
	parts := make([]string, 0, len(labels))
	for _, l := range labels {
		parts = append(parts, l.Key+"="+l.Value)
	}
	sort.Strings(parts)
	return name + "{" + strings.Join(parts, ",") + "}"
}
