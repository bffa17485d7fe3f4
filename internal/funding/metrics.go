package funding

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var webhooksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "vtu_funding_webhooks_total",
	Help: "Inbound funding webhooks by provider and outcome.",
}, []string{"provider", "outcome"})
