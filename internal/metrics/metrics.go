// Package metrics exposes the desk's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsProcessed counts job handler outcomes per job type.
	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "desk_jobs_processed_total",
		Help: "Jobs processed by the jobs worker, by type and outcome.",
	}, []string{"job_type", "outcome"})

	// OrdersProcessed counts order worker outcomes.
	OrdersProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "desk_orders_processed_total",
		Help: "Orders driven to an outcome by the order worker.",
	}, []string{"outcome"})

	// QueueDepth tracks the last observed eligible queue depth per queue.
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "desk_queue_depth",
		Help: "Eligible rows observed at the start of a worker pass.",
	}, []string{"queue"})
)
