// Package metrics registers the prometheus collectors shared by the Boost
// multiplexer and the auctioneer and exposes the /metrics handler both
// services mount on their HTTP routers.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bidoor"

var (
	// APIRequests counts Builder/Relay API calls issued to relays, by
	// method and relay.
	APIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "relay",
		Name:      "api_requests_total",
		Help:      "total number of relay API requests",
	}, []string{"method", "relay"})

	// APITimeouts counts relay calls dropped from a fan-out because they
	// exceeded their per-call deadline.
	APITimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "relay",
		Name:      "api_timeouts_total",
		Help:      "total number of relay API timeouts",
	}, []string{"method", "relay"})

	// APIRequestDuration observes relay call latency in seconds.
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "relay",
		Name:      "api_request_duration_seconds",
		Help:      "duration in seconds of relay API requests",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "relay"})

	// AuctionInvalidBids counts bids discarded during selection, by reason
	// (public key mismatch, bad signature) and relay.
	AuctionInvalidBids = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auction",
		Name:      "invalid_bids_total",
		Help:      "total number of invalid bids discarded during selection",
	}, []string{"reason", "relay"})

	// AuctionsWon counts fetch_best_bid calls that returned a bid.
	AuctionsWon = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auction",
		Name:      "bids_selected_total",
		Help:      "total number of best bids returned to proposers",
	})

	// AuctionsEmpty counts fetch_best_bid calls where no bid survived.
	AuctionsEmpty = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auction",
		Name:      "no_bids_total",
		Help:      "total number of header requests answered with no bids",
	})

	// RegistrationsAccepted counts validator registrations stored.
	RegistrationsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "registry",
		Name:      "registrations_accepted_total",
		Help:      "total number of validator registrations accepted",
	})

	// RegistrationsRejected counts registrations rejected, by reason.
	RegistrationsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "registry",
		Name:      "registrations_rejected_total",
		Help:      "total number of validator registrations rejected",
	}, []string{"reason"})

	// BidSubmissions counts builder bid submissions, by relay and outcome.
	BidSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "builder",
		Name:      "bid_submissions_total",
		Help:      "total number of bid submissions sent to relays",
	}, []string{"relay", "outcome"})
)

// Handler returns the HTTP handler serving the default prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
