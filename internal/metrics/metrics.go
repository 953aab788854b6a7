package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventhub_request_transitions_total",
			Help: "Event request status transitions committed, by target status",
		},
		[]string{"status"},
	)

	listingsPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eventhub_listings_published_total",
			Help: "Listings created by approved requests",
		},
	)

	ticketsIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eventhub_tickets_issued_total",
			Help: "Tickets issued",
		},
	)

	purchaseRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventhub_purchase_rejections_total",
			Help: "Purchase attempts that did not issue a ticket",
		},
		[]string{"reason"},
	)

	issuanceRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eventhub_issuance_retries_total",
			Help: "Ticket issuance attempts retried after a uniqueness conflict",
		},
	)

	ticketsRedeemed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventhub_ticket_redemptions_total",
			Help: "Ticket redemption attempts by outcome",
		},
		[]string{"outcome"},
	)

	ticketsCancelled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eventhub_tickets_cancelled_total",
			Help: "Tickets cancelled",
		},
	)

	notificationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventhub_notification_failures_total",
			Help: "Lifecycle notifications that could not be handed to the broker",
		},
		[]string{"kind"},
	)
)

func RequestTransition(status string) {
	requestTransitions.WithLabelValues(status).Inc()
}

func ListingPublished() {
	listingsPublished.Inc()
}

func TicketIssued() {
	ticketsIssued.Inc()
}

func PurchaseRejected(reason string) {
	purchaseRejections.WithLabelValues(reason).Inc()
}

func IssuanceRetried() {
	issuanceRetries.Inc()
}

func TicketRedeemed(outcome string) {
	ticketsRedeemed.WithLabelValues(outcome).Inc()
}

func TicketCancelled() {
	ticketsCancelled.Inc()
}

func NotificationFailed(kind string) {
	notificationFailures.WithLabelValues(kind).Inc()
}
