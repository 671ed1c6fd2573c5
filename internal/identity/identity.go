// Package identity establishes the opaque device identity that every remote call is scoped to.
package identity

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/rpansync/internal/repositories"
	"github.com/desertthunder/rpansync/internal/shared"
)

// Provider supplies the user ID required by the remote repository.
type Provider interface {
	EnsureIdentity(ctx context.Context) (string, error)
}

// Settings is the slice of the local store the provider needs.
type Settings interface {
	String(ctx context.Context, key string) (string, bool, error)
	SetString(ctx context.Context, key, value string) error
}

// Registrar records a new identity remotely.
type Registrar interface {
	CreateUser(ctx context.Context, userID string) error
}

// AnonymousProvider issues a random identity on first use and reuses it afterwards.
//
// The ID is stored locally only once the remote users collection has accepted it, so a failed bootstrap is retried
// from scratch on the next call.
type AnonymousProvider struct {
	settings  Settings
	registrar Registrar
	newID     func() string
	log       *log.Logger

	mu sync.Mutex
}

// NewAnonymousProvider creates an [AnonymousProvider].
func NewAnonymousProvider(settings Settings, registrar Registrar, logger *log.Logger) *AnonymousProvider {
	if logger == nil {
		logger = shared.DiscardLogger()
	}
	return &AnonymousProvider{
		settings:  settings,
		registrar: registrar,
		newID:     shared.GenerateID,
		log:       shared.WithLogger(logger, "component", "identity"),
	}
}

// EnsureIdentity returns the stored user ID, creating and registering one when none exists.
// Any failure is reported as [shared.ErrAuth].
func (p *AnonymousProvider) EnsureIdentity(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id, ok, err := p.settings.String(ctx, repositories.KeyUserID)
	if err != nil {
		return "", fmt.Errorf("%w: %w", shared.ErrAuth, err)
	}
	if ok && id != "" {
		return id, nil
	}

	id = p.newID()
	if err := p.registrar.CreateUser(ctx, id); err != nil {
		return "", fmt.Errorf("%w: failed to register identity: %w", shared.ErrAuth, err)
	}
	if err := p.settings.SetString(ctx, repositories.KeyUserID, id); err != nil {
		return "", fmt.Errorf("%w: failed to store identity: %w", shared.ErrAuth, err)
	}

	p.log.Info("created anonymous identity", "user_id", id)
	return id, nil
}

// Static is a fixed identity, for callers that already hold one.
type Static string

func (s Static) EnsureIdentity(context.Context) (string, error) {
	if s == "" {
		return "", fmt.Errorf("%w: empty identity", shared.ErrAuth)
	}
	return string(s), nil
}
