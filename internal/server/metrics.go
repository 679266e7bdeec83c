package server

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chamberlog_requests_total",
		Help: "Ingest requests by route and response status.",
	}, []string{"route", "status"})

	recordsAccepted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chamberlog_records_accepted_total",
		Help: "Records durably written to the backend, by record kind.",
	}, []string{"kind"})

	recordsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chamberlog_records_dropped_total",
		Help: "Telemetry records silently dropped for an unresolvable timestamp.",
	})
)

func observeRequest(route string, status int) {
	requestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

func observeAccepted(kind string, n int) {
	recordsAccepted.WithLabelValues(kind).Add(float64(n))
}

func observeDropped(n int) {
	if n > 0 {
		recordsDropped.Add(float64(n))
	}
}
