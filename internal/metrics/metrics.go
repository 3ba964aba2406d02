package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HoldsGranted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_holds_granted_total",
		Help: "The total number of holds granted",
	})
	HoldsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_holds_rejected_total",
		Help: "The total number of hold requests rejected for insufficient capacity",
	})
	LockTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_lock_timeouts_total",
		Help: "The total number of per-ticket-type lock acquisition timeouts",
	})
	OrdersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_orders_created_total",
		Help: "The total number of orders created",
	})
	OrdersCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_orders_cancelled_total",
		Help: "The total number of orders cancelled",
	})
	TicketsIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_tickets_issued_total",
		Help: "The total number of physical tickets issued",
	})
	StageCutovers = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_stage_cutovers_total",
		Help: "The total number of automatic stage tier cutovers",
	})
)
