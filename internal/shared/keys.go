package shared

import "fmt"

// NotifyDedupeKey builds redis keys used to deduplicate transition
// notification fan-out per record version.
func NotifyDedupeKey(kind string, requestID, version int64) string {
	return fmt.Sprintf("notify:%s:%d:v%d", kind, requestID, version)
}

// AssignIdempotencyKey builds the idempotency key guarding assign
// double-submits.
func AssignIdempotencyKey(kind string, requestID, version int64) string {
	return fmt.Sprintf("assign:%s:%d:v%d", kind, requestID, version)
}
