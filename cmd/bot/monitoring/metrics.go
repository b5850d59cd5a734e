package monitoring

import (
	"fmt"

	"github.com/Jacobbrewer1/howl/cmd/bot/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TotalEvents is the total number of events taken off the event channel.
	TotalEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_total_events", config.AppName),
			Help: "Total number of events",
		},
		[]string{"event"},
	)

	// HttpTotalRequests is the total number of http requests.
	HttpTotalRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_http_total_requests", config.AppName),
			Help: "Total number of http requests",
		},
		[]string{"path", "method", "status_code"},
	)

	// HttpRequestDuration is the duration of the http request.
	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: fmt.Sprintf("%s_http_request_duration", config.AppName),
			Help: "Duration of the http request",
		},
		[]string{"path", "method", "status_code"},
	)

	// CommandDuration is the duration of a ticket command.
	CommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: fmt.Sprintf("%s_command_duration", config.AppName),
			Help: "Duration of the ticket command",
		},
		[]string{"command"},
	)

	// TotalCommands is the total number of ticket commands by result.
	TotalCommands = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_total_commands", config.AppName),
			Help: "Total number of ticket commands",
		},
		[]string{"command", "result"},
	)

	// MembershipCorrections is the total number of membership events by enforcement outcome.
	MembershipCorrections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_membership_outcomes", config.AppName),
			Help: "Total number of membership events by enforcement outcome",
		},
		[]string{"outcome"},
	)
)
