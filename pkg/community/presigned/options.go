package presigned

import "time"

// Option is a functional option for configuring a Signer
type Option func(*Signer)

// WithSecretKey sets the secret key used for HMAC signing
// The key should be at least 32 bytes
func WithSecretKey(key string) Option {
	return func(s *Signer) {
		s.secretKey = []byte(key)
	}
}

// WithClock replaces time.Now for both signing and validation
func WithClock(now func() time.Time) Option {
	return func(s *Signer) {
		s.now = now
	}
}
