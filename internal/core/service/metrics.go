package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	chargesCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pix_gateway_charges_created_total",
		Help: "Charges created, labeled by the provider that served them.",
	}, []string{"provider"})

	providerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pix_gateway_provider_failures_total",
		Help: "Create attempts that failed, labeled by provider.",
	}, []string{"provider"})

	chargesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pix_gateway_charges_failed_total",
		Help: "Charge requests that exhausted the whole provider chain.",
	})

	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pix_gateway_cache_hits_total",
		Help: "Charge requests answered from the idempotency cache.",
	})

	notifyFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pix_gateway_notify_failures_total",
		Help: "Outbound event notifications that could not be delivered.",
	})
)
