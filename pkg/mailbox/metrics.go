package mailbox

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulserelay_requests_submitted_total",
		Help: "AI requests written to the store.",
	})
	responsesMatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulserelay_responses_matched_total",
		Help: "Responses matched to an outstanding request.",
	})
	requestsTimedOut = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulserelay_requests_timed_out_total",
		Help: "Awaits that hit the per-call deadline.",
	})
	requestsCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulserelay_requests_cancelled_total",
		Help: "Awaits resolved by an explicit cancel.",
	})
	responseDecodeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulserelay_response_decode_failures_total",
		Help: "Response documents that failed tolerant decoding.",
	})
	correlationMismatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulserelay_correlation_mismatches_total",
		Help: "Responses observed whose correlation key matched no outstanding request.",
	})
)
