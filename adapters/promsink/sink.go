// Package promsink counts identity activity events with Prometheus.
package promsink

import (
	"context"

	identity "github.com/goliatone/go-identity"
	"github.com/prometheus/client_golang/prometheus"
)

// Sink is an identity.ActivitySink backed by counter vectors.
type Sink struct {
	events      *prometheus.CounterVec
	transitions *prometheus.CounterVec
}

var _ identity.ActivitySink = (*Sink)(nil)

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer, namespace string) (*Sink, error) {
	if namespace == "" {
		namespace = "identity"
	}

	s := &Sink{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activity_events_total",
			Help:      "Identity activity events by type.",
		}, []string{"event"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_transitions_total",
			Help:      "Session state transitions.",
		}, []string{"from", "to"}),
	}

	for _, c := range []prometheus.Collector{s.events, s.transitions} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func (s *Sink) Record(_ context.Context, event identity.ActivityEvent) error {
	s.events.WithLabelValues(string(event.EventType)).Inc()
	if event.FromState != "" || event.ToState != "" {
		s.transitions.WithLabelValues(string(event.FromState), string(event.ToState)).Inc()
	}
	return nil
}
