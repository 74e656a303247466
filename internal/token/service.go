package token

import "time"

// Service binds the signing secret and token lifetime from configuration.
// It is safe for concurrent use; it holds no mutable state.
type Service struct {
	secret     string
	ttlMinutes int64
	now        func() time.Time
}

// NewService returns a Service that signs with secret (base64) for ttlMinutes.
func NewService(secret string, ttlMinutes int64) *Service {
	return &Service{secret: secret, ttlMinutes: ttlMinutes, now: time.Now}
}

// Issue signs a token for subject with the configured lifetime and the fixed Issuer.
func (s *Service) Issue(subject string) (string, error) {
	return generateAt(s.now(), subject, s.ttlMinutes, s.secret, Issuer)
}

// Validate verifies raw against the configured secret.
func (s *Service) Validate(raw string) (Claims, error) {
	return verifyAt(s.now(), raw, s.secret)
}
