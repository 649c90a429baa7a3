package worker

import "math"

// MaxBackoff caps the visibility timeout of a retried message at one hour.
const MaxBackoff int32 = 3600

// Backoff returns the visibility timeout in seconds for the given retry:
// 10s doubled per retry, capped at MaxBackoff.
func Backoff(retryCount int) int32 {
	if retryCount < 0 {
		retryCount = 0
	}
	backoff := math.Pow(2, float64(retryCount)) * 10
	if backoff > float64(MaxBackoff) {
		return MaxBackoff
	}
	return int32(backoff)
}
