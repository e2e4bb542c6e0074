package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders created",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of rejected order requests",
	}, []string{"reason"})

	OrdersCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_cancelled_total",
		Help: "Total number of cancelled orders",
	})

	StockReservationsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_reservations_failed_total",
		Help: "Total number of failed stock reservations",
	}, []string{"reason"})

	PaymentRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_requests_total",
		Help: "Total number of payment requests created",
	}, []string{"gateway"})

	PaymentsPaidTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payments_paid_total",
		Help: "Total number of transactions marked paid",
	})

	PaymentsFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payments_failed_total",
		Help: "Total number of transactions marked failed",
	})

	WebhooksReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_webhooks_received_total",
		Help: "Total number of payment webhooks received",
	}, []string{"gateway"})

	WebhookSignatureFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_webhook_signature_failures_total",
		Help: "Total number of webhooks rejected for bad signatures",
	}, []string{"gateway"})

	ReconciliationConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reconciliation_conflicts_total",
		Help: "Paid transactions whose order could not be transitioned",
	})

	OTPRequestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "otp_requests_total",
		Help: "Total number of login OTPs requested",
	})

	LoginLockoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "login_lockouts_total",
		Help: "Total number of logins refused by the attempt limiter",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
