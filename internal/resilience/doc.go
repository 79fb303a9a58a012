// Package resilience groups the fault tolerance helpers used by the briefing
// worker: circuit breakers around channel transports, the work queue and the
// database, and retry with exponential backoff and jitter for broker dials.
//
// Usage Example:
//
//	cb := circuitbreaker.New(circuitbreaker.ChannelConfig("email"))
//	result, err := cb.Execute(func() (interface{}, error) {
//	    return nil, sendEmail(ctx)
//	})
//
//	err := retry.WithBackoff(ctx, retry.BrokerDialConfig(), func() error {
//	    return dial()
//	})
package resilience
