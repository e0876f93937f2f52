// Package metrics records payment flow counters and latencies.
package metrics

import "time"

// Event names
const (
	EventConnect          = "connect"
	EventConnectFailed    = "connect_failed"
	EventBalance          = "balance"
	EventBalanceFailed    = "balance_failed"
	EventPaymentStarted   = "payment_started"
	EventPaymentRejected  = "payment_rejected"
	EventPaymentFailed    = "payment_failed"
	EventPaymentCompleted = "payment_completed"
	EventTxSubmitted      = "tx_submitted"
	EventTxConfirmed      = "tx_confirmed"
)

type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}
