// Package dedupe drops redelivered platform events using a TTL cache,
// so retried webhook or socket deliveries never spawn duplicate
// executions.
package dedupe
