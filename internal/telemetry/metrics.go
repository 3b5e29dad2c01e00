package telemetry

import (
	"context"
	"math"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

const namespace = "peerpulse"

var (
	// InsightCalls counts gateway calls by operation and outcome:
	// ok, no_credential, skipped, failed
	InsightCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "insight",
		Name:      "calls_total",
		Help:      "Generative-text gateway calls by operation and outcome",
	}, []string{"operation", "outcome"})

	FeedbackRequestsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "feedback_requests_created_total",
		Help:      "Feedback requests created, by request type",
	}, []string{"type"})

	FeedbackSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "feedback_submitted_total",
		Help:      "Feedback entries accepted",
	})

	AggregateRecomputes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "aggregate",
		Name:      "recomputes_total",
		Help:      "Aggregation results computed, by cache outcome",
	}, []string{"cache"})
)

// RegisterRedisMetrics exposes the Redis connected-clients gauge. Registering
// twice, as happens when tests build several servers, is ignored.
func RegisterRedisMetrics(client *redis.Client) {
	if client == nil {
		return
	}

	err := prometheus.Register(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Subsystem: "redis",
			Name:      "connected_clients",
			Help:      "The number of clients currently connected to Redis",
		},
		func() float64 {
			ctx := context.Background()
			connectedClientsRaw := client.InfoMap(ctx).Item("Clients", "connected_clients")

			connectedClients, err := strconv.ParseFloat(connectedClientsRaw, 64)
			if err != nil {
				return math.NaN()
			}

			return connectedClients
		},
	))
	if err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			panic(err)
		}
	}
}
