package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/desertthunder/rpansync/internal/repositories"
	"github.com/desertthunder/rpansync/internal/shared"
)

type memorySettings struct {
	values map[string]string
	setErr error
}

func (m *memorySettings) String(_ context.Context, key string) (string, bool, error) {
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *memorySettings) SetString(_ context.Context, key, value string) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.values[key] = value
	return nil
}

type mockRegistrar struct {
	created []string
	err     error
}

func (m *mockRegistrar) CreateUser(_ context.Context, userID string) error {
	if m.err != nil {
		return m.err
	}
	m.created = append(m.created, userID)
	return nil
}

func TestAnonymousProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("creates and stores identity once", func(t *testing.T) {
		settings := &memorySettings{values: map[string]string{}}
		registrar := &mockRegistrar{}
		p := NewAnonymousProvider(settings, registrar, nil)

		first, err := p.EnsureIdentity(ctx)
		if err != nil {
			t.Fatalf("EnsureIdentity failed: %v", err)
		}
		second, err := p.EnsureIdentity(ctx)
		if err != nil {
			t.Fatalf("EnsureIdentity failed: %v", err)
		}

		if first == "" || first != second {
			t.Errorf("expected a stable identity, got %q and %q", first, second)
		}
		if len(registrar.created) != 1 || registrar.created[0] != first {
			t.Errorf("expected one registration of %q, got %v", first, registrar.created)
		}
		if settings.values[repositories.KeyUserID] != first {
			t.Errorf("identity not stored locally")
		}
	})

	t.Run("reuses stored identity", func(t *testing.T) {
		settings := &memorySettings{values: map[string]string{repositories.KeyUserID: "existing"}}
		registrar := &mockRegistrar{}
		p := NewAnonymousProvider(settings, registrar, nil)

		id, err := p.EnsureIdentity(ctx)
		if err != nil || id != "existing" {
			t.Fatalf("got %q, %v", id, err)
		}
		if len(registrar.created) != 0 {
			t.Error("stored identity should not be re-registered")
		}
	})

	t.Run("registration failure is ErrAuth and stores nothing", func(t *testing.T) {
		settings := &memorySettings{values: map[string]string{}}
		registrar := &mockRegistrar{err: shared.ErrNetwork}
		p := NewAnonymousProvider(settings, registrar, nil)

		_, err := p.EnsureIdentity(ctx)
		if !errors.Is(err, shared.ErrAuth) || !errors.Is(err, shared.ErrNetwork) {
			t.Errorf("expected ErrAuth wrapping ErrNetwork, got %v", err)
		}
		if _, ok := settings.values[repositories.KeyUserID]; ok {
			t.Error("identity should not be stored after a failed registration")
		}
	})

	t.Run("local write failure is ErrAuth", func(t *testing.T) {
		settings := &memorySettings{values: map[string]string{}, setErr: shared.ErrLocalStore}
		p := NewAnonymousProvider(settings, &mockRegistrar{}, nil)

		if _, err := p.EnsureIdentity(ctx); !errors.Is(err, shared.ErrAuth) {
			t.Errorf("expected ErrAuth, got %v", err)
		}
	})

	t.Run("uses injected generator", func(t *testing.T) {
		settings := &memorySettings{values: map[string]string{}}
		p := NewAnonymousProvider(settings, &mockRegistrar{}, nil)
		p.newID = func() string { return "fixed" }

		if id, _ := p.EnsureIdentity(ctx); id != "fixed" {
			t.Errorf("got %q", id)
		}
	})
}

func TestStatic(t *testing.T) {
	if id, err := Static("u1").EnsureIdentity(context.Background()); err != nil || id != "u1" {
		t.Errorf("got %q, %v", id, err)
	}
	if _, err := Static("").EnsureIdentity(context.Background()); !errors.Is(err, shared.ErrAuth) {
		t.Errorf("expected ErrAuth, got %v", err)
	}
}
