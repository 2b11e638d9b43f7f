package security

import "time"

// DefaultClockSkewGracePeriod is the default grace period applied to expiry
// checks. It prevents false expiration errors due to time synchronization
// differences between systems. 5 seconds handles typical NTP drift while
// keeping the effective lifetime extension negligible.
const DefaultClockSkewGracePeriod = 5 * time.Second

// IsExpired checks if a timestamp has passed, with the default clock skew
// grace period applied.
func IsExpired(expiresAt time.Time) bool {
	return IsExpiredWithGracePeriod(expiresAt, DefaultClockSkewGracePeriod)
}

// IsExpiredWithGracePeriod checks if a timestamp has passed with a custom
// clock skew grace period. A zero timestamp never expires.
func IsExpiredWithGracePeriod(expiresAt time.Time, gracePeriod time.Duration) bool {
	if expiresAt.IsZero() {
		return false
	}

	return time.Now().After(expiresAt.Add(gracePeriod))
}
