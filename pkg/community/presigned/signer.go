package presigned

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Grant is the tuple a signature is bound to.
type Grant struct {
	Method      string
	Key         string
	ContentType string
	Metadata    map[string]string
	Filename    string
}

// Signer generates and validates HMAC-signed URLs for stores that have no
// native signing scheme.
type Signer struct {
	secretKey []byte
	now       func() time.Time
}

// New creates a new Signer with the given options
func New(opts ...Option) *Signer {
	s := &Signer{
		now: time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Sign returns the hex signature for g and the unix expiry it is valid until.
func (s *Signer) Sign(g Grant, expiresIn time.Duration) (string, int64, error) {
	if len(s.secretKey) == 0 {
		return "", 0, ErrNoSecretKey
	}
	expiresAt := s.now().Add(expiresIn).Unix()
	return s.generateSignature(s.createPayload(g, expiresAt)), expiresAt, nil
}

// SignURL builds baseURL/{key}?signature=..&expires=..[&filename=..]
//
// Example:
//
//	u, exp, err := signer.SignURL("http://localhost:3000/objects/upload", grant, time.Minute)
//	// u: http://localhost:3000/objects/upload/media/m1.jpg?expires=1696789012&signature=abc123...
func (s *Signer) SignURL(baseURL string, g Grant, expiresIn time.Duration) (string, int64, error) {
	signature, expiresAt, err := s.Sign(g, expiresIn)
	if err != nil {
		return "", 0, err
	}

	query := url.Values{}
	query.Set("signature", signature)
	query.Set("expires", strconv.FormatInt(expiresAt, 10))
	if g.Filename != "" {
		query.Set("filename", g.Filename)
	}

	return fmt.Sprintf("%s/%s?%s", strings.TrimRight(baseURL, "/"), escapeKey(g.Key), query.Encode()), expiresAt, nil
}

// Validate checks expiry and signature for a grant
func (s *Signer) Validate(g Grant, signature string, expiresAt int64) error {
	// Check expiration
	if s.now().Unix() > expiresAt {
		return ErrExpired
	}

	expectedSignature := s.generateSignature(s.createPayload(g, expiresAt))

	// Compare signatures using constant-time comparison
	if !hmac.Equal([]byte(signature), []byte(expectedSignature)) {
		return ErrInvalidSignature
	}

	return nil
}

// ValidateQuery extracts signature and expires from query parameters and
// validates them against g
func (s *Signer) ValidateQuery(query url.Values, g Grant) error {
	signature := query.Get("signature")
	expiresStr := query.Get("expires")

	if signature == "" {
		return ErrMissingSignature
	}
	if expiresStr == "" {
		return ErrMissingExpiration
	}

	expiresAt, err := strconv.ParseInt(expiresStr, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidExpiration, err)
	}

	return s.Validate(g, signature, expiresAt)
}

// IsEnabled returns true if signature validation is enabled (secret key is set)
func (s *Signer) IsEnabled() bool {
	return len(s.secretKey) > 0
}

// createPayload length-prefixes every field so no two grants share a payload.
func (s *Signer) createPayload(g Grant, expiresAt int64) string {
	var b strings.Builder
	writeField(&b, strings.ToUpper(g.Method))
	writeField(&b, g.Key)
	writeField(&b, g.ContentType)
	writeMetadata(&b, g.Metadata)
	writeField(&b, g.Filename)
	writeField(&b, strconv.FormatInt(expiresAt, 10))
	return b.String()
}

// generateSignature generates HMAC-SHA256 signature for the given payload
func (s *Signer) generateSignature(payload string) string {
	h := hmac.New(sha256.New, s.secretKey)
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}

func writeField(b *strings.Builder, v string) {
	b.WriteString(strconv.Itoa(len(v)))
	b.WriteByte(':')
	b.WriteString(v)
}

// writeMetadata writes the entry count then each lowercased key and value in
// key order.
func writeMetadata(b *strings.Builder, m map[string]string) {
	lower := make(map[string]string, len(m))
	for k, v := range m {
		lower[strings.ToLower(k)] = v
	}
	keys := make([]string, 0, len(lower))
	for k := range lower {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	writeField(b, strconv.Itoa(len(keys)))
	for _, k := range keys {
		writeField(b, k)
		writeField(b, lower[k])
	}
}

func escapeKey(key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}
