package token

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = base64.StdEncoding.EncodeToString([]byte("test-secret-key-for-unit-tests"))

func TestGenerateVerify_RoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		ttl     int64
	}{
		{"one minute", "user@example.com", 1},
		{"thirty minutes", "validuser@example.com", 30},
		{"one day", "long@example.com", 24 * 60},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := Generate(tt.subject, tt.ttl, testSecret, Issuer)
			if err != nil {
				t.Fatalf("Generate() error = %v", err)
			}
			claims, err := Verify(raw, testSecret)
			if err != nil {
				t.Fatalf("Verify() error = %v", err)
			}
			if claims.Subject != tt.subject {
				t.Errorf("Subject = %q, want %q", claims.Subject, tt.subject)
			}
			if claims.Issuer != Issuer {
				t.Errorf("Issuer = %q, want %q", claims.Issuer, Issuer)
			}
			if got := claims.ExpiresAt - claims.IssuedAt; got != tt.ttl*60 {
				t.Errorf("exp - iat = %d, want %d", got, tt.ttl*60)
			}
		})
	}
}

func TestGenerate_InvalidTTL(t *testing.T) {
	for _, ttl := range []int64{0, -1, -30} {
		_, err := Generate("user@example.com", ttl, testSecret, Issuer)
		if !errors.Is(err, ErrInvalidTTL) {
			t.Errorf("Generate(ttl=%d) error = %v, want ErrInvalidTTL", ttl, err)
		}
	}
}

func TestGenerate_BadSecret(t *testing.T) {
	for _, secret := range []string{"not base64!!", ""} {
		_, err := Generate("user@example.com", 5, secret, Issuer)
		if !errors.Is(err, ErrSigning) {
			t.Errorf("Generate(secret=%q) error = %v, want ErrSigning", secret, err)
		}
	}
}

func TestVerify_ExpiredToken(t *testing.T) {
	issued := time.Now().Add(-2 * time.Hour)
	raw, err := generateAt(issued, "user@example.com", 30, testSecret, Issuer)
	if err != nil {
		t.Fatalf("generateAt() error = %v", err)
	}
	if _, err := Verify(raw, testSecret); !errors.Is(err, ErrValidation) {
		t.Errorf("Verify() error = %v, want ErrValidation", err)
	}
}

func TestVerifyAt_ExpiryBoundary(t *testing.T) {
	issued := time.Unix(1_700_000_000, 0)
	raw, err := generateAt(issued, "user@example.com", 1, testSecret, Issuer)
	if err != nil {
		t.Fatalf("generateAt() error = %v", err)
	}

	if _, err := verifyAt(issued.Add(59*time.Second), raw, testSecret); err != nil {
		t.Errorf("verifyAt(exp-1s) error = %v, want nil", err)
	}
	if _, err := verifyAt(issued.Add(61*time.Second), raw, testSecret); !errors.Is(err, ErrValidation) {
		t.Errorf("verifyAt(exp+1s) error = %v, want ErrValidation", err)
	}
}

func TestVerify_WrongIssuer(t *testing.T) {
	raw, err := Generate("user@example.com", 5, testSecret, "someone-else")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if _, err := Verify(raw, testSecret); !errors.Is(err, ErrValidation) {
		t.Errorf("Verify() error = %v, want ErrValidation", err)
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	raw, err := Generate("user@example.com", 5, testSecret, Issuer)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	other := base64.StdEncoding.EncodeToString([]byte("a-different-secret"))
	if _, err := Verify(raw, other); !errors.Is(err, ErrValidation) {
		t.Errorf("Verify() error = %v, want ErrValidation", err)
	}
}

func TestVerify_Tampered(t *testing.T) {
	raw, err := Generate("user@example.com", 5, testSecret, Issuer)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	parts := strings.Split(raw, ".")
	forged, err := Generate("attacker@example.com", 5, testSecret, Issuer)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	// Swap in another token's payload while keeping the original signature.
	parts[1] = strings.Split(forged, ".")[1]
	tampered := strings.Join(parts, ".")

	if _, err := Verify(tampered, testSecret); !errors.Is(err, ErrValidation) {
		t.Errorf("Verify(tampered) error = %v, want ErrValidation", err)
	}
}

func TestVerify_Malformed(t *testing.T) {
	for _, raw := range []string{"", "garbage", "a.b.c"} {
		if _, err := Verify(raw, testSecret); !errors.Is(err, ErrValidation) {
			t.Errorf("Verify(%q) error = %v, want ErrValidation", raw, err)
		}
	}
}

func TestVerify_UnsignedRejected(t *testing.T) {
	claims := jwt.RegisteredClaims{
		Subject:   "user@example.com",
		Issuer:    Issuer,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	if _, err := Verify(raw, testSecret); !errors.Is(err, ErrValidation) {
		t.Errorf("Verify(alg=none) error = %v, want ErrValidation", err)
	}
}

func TestService_IssueValidate(t *testing.T) {
	s := NewService(testSecret, 30)
	raw, err := s.Issue("user@example.com")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	claims, err := s.Validate(raw)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if claims.Subject != "user@example.com" {
		t.Errorf("Subject = %q, want user@example.com", claims.Subject)
	}

	s.now = func() time.Time { return time.Now().Add(31 * time.Minute) }
	if _, err := s.Validate(raw); !errors.Is(err, ErrValidation) {
		t.Errorf("Validate() after expiry error = %v, want ErrValidation", err)
	}
}
