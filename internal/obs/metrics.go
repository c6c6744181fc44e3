// Package obs exposes the prometheus counters for delivery transitions and
// background credential refreshes.
package obs

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once

	// DeliveryTransitions counts registry mutations by action and outcome
	// (ok, forbidden, invalid_transition, not_found, invalid_input, error).
	DeliveryTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_transitions_total",
			Help: "Delivery request mutations by action and outcome.",
		},
		[]string{"action", "outcome"},
	)

	// SessionRefreshes counts credential refresh attempts made by the
	// session manager (ok, failed, superseded).
	SessionRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_refresh_total",
			Help: "Credential refresh attempts by outcome.",
		},
		[]string{"outcome"},
	)
)

// Init registers the counters in the default registry.  Safe to call more
// than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(DeliveryTransitions, SessionRefreshes)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
