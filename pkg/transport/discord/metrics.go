package discord

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// GatewayEvents is the total number of gateway events received from Discord.
var GatewayEvents = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "discord_gateway_events_total",
		Help: "Total number of gateway events received from Discord",
	},
	[]string{"event"},
)
