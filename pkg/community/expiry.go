package community

import "fmt"

// Default grant lifetimes, in seconds.
const (
	DefaultPutExpirySec = 900
	DefaultGetExpirySec = 3600
)

// ResolveExpiry picks the effective lifetime of a grant. A nil request falls
// back to def; anything non-positive is rejected.
func ResolveExpiry(requested *int, def int) (int, error) {
	sec := def
	if requested != nil {
		sec = *requested
	}
	if sec <= 0 {
		return 0, fmt.Errorf("%w: expiresInSeconds must be positive, got %d", ErrInvalidExpiry, sec)
	}
	return sec, nil
}
