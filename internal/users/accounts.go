package users

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/kjstillabower/weather-gateway/internal/models"
)

// DefaultCost is the bcrypt work factor for stored passwords.
const DefaultCost = 12

// maxPasswordBytes is the most bcrypt hashes; longer passwords are truncated to it.
const maxPasswordBytes = 72

// Accounts implements register and login on top of the credential store.
type Accounts struct {
	store *Store
	cost  int
}

// NewAccounts creates an Accounts using bcrypt cost (DefaultCost when out of range).
func NewAccounts(store *Store, cost int) *Accounts {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	return &Accounts{store: store, cost: cost}
}

// Register hashes the password and stores a new user.
func (a *Accounts) Register(ctx context.Context, req models.RegisterRequest) (models.User, error) {
	hash, err := bcrypt.GenerateFromPassword(passwordBytes(req.Password), a.cost)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}
	return a.store.Create(ctx, req.Name, req.Email, string(hash))
}

// Authenticate checks the credentials and returns nil when they match a stored user.
func (a *Accounts) Authenticate(ctx context.Context, req models.LoginRequest) error {
	hash, err := a.store.PasswordHash(ctx, req.Email)
	if err != nil {
		return err
	}
	err = bcrypt.CompareHashAndPassword([]byte(hash), passwordBytes(req.Password))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return ErrPasswordMismatch
	default:
		return fmt.Errorf("compare password: %w", err)
	}
}

// passwordBytes returns the bytes bcrypt sees: at most the first 72.
func passwordBytes(password string) []byte {
	b := []byte(password)
	if len(b) > maxPasswordBytes {
		b = b[:maxPasswordBytes]
	}
	return b
}
