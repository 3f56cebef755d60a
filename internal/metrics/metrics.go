package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "logscope_active_subscriptions",
		Help: "Typed log subscriptions currently open",
	})

	SubscribeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "logscope_subscribe_failures_total",
		Help: "Typed log subscriptions that failed during setup",
	})

	LogsDecoded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "logscope_logs_decoded_total",
		Help: "Raw logs successfully decoded into typed events",
	})

	DecodeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "logscope_decode_failures_total",
		Help: "Raw logs rejected by the decoder",
	})

	LastBlock = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "logscope_last_block",
		Help: "Highest block number seen by the watcher",
	})
)
