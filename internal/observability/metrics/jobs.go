// Package metrics holds the metric names and tag conventions of the pipeline.
package metrics

import (
	"maps"
	"time"

	obserrors "github.com/target/mmk-inference/internal/observability/errors"
	"github.com/target/mmk-inference/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// JobMetric captures details about a job lifecycle event for metric emission.
type JobMetric struct {
	Model      string
	Transition string
	Result     string
	Duration   time.Duration
	Err        error
	// ErrorClass overrides the class derived from Err.
	ErrorClass string
}

// EmitJobLifecycle emits standardised job lifecycle metrics.
func EmitJobLifecycle(sink statsd.Sink, in JobMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"model":      in.Model,
		"transition": in.Transition,
		"result":     in.Result,
	}
	if in.Result == ResultError {
		class := in.ErrorClass
		if class == "" {
			class = obserrors.Classify(in.Err)
		}
		if class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("job.transition", 1, tags)
	if in.Duration > 0 {
		sink.Timing("job.duration", in.Duration, CloneTags(tags))
	}
}

// EmitAdmission records the outcome of an enqueue attempt: "admitted",
// "deduplicated" or "rejected".
func EmitAdmission(sink statsd.Sink, model, outcome string) {
	if sink == nil {
		return
	}
	sink.Count("scheduler.admission", 1, map[string]string{"model": model, "outcome": outcome})
}

// EmitCacheLookup records a result cache hit or miss.
func EmitCacheLookup(sink statsd.Sink, hit bool) {
	if sink == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	sink.Count("cache.lookup", 1, map[string]string{"result": result})
}

// EmitCacheSweep records how many expired entries a sweep removed.
func EmitCacheSweep(sink statsd.Sink, removed int) {
	if sink == nil {
		return
	}
	sink.Count("cache.swept", int64(removed), nil)
}

// EmitHubDrops records events dropped from a lagging subscriber's buffer.
func EmitHubDrops(sink statsd.Sink, dropped int) {
	if sink == nil || dropped <= 0 {
		return
	}
	sink.Count("hub.dropped", int64(dropped), nil)
}

// EmitHubSubscribers records the number of registered subscriptions.
func EmitHubSubscribers(sink statsd.Sink, n int) {
	if sink == nil {
		return
	}
	sink.Gauge("hub.subscribers", float64(n), nil)
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	return maps.Clone(src)
}
