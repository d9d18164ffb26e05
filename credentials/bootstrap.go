package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ruteri/bank-session-client/interfaces"
)

// Bootstrapper drives a credential from any stage to a live Session,
// persisting after every successful transition so a restart resumes from the
// furthest completed stage.
type Bootstrapper struct {
	builder *Builder
	store   interfaces.CredentialStore
	log     *slog.Logger

	// APISecret is the account-level secret the device is registered with.
	APISecret string
	// Description names the device in the account's device list.
	Description string
}

// NewBootstrapper creates a Bootstrapper. store may be nil, in which case
// nothing is persisted.
func NewBootstrapper(builder *Builder, store interfaces.CredentialStore, apiSecret, description string) *Bootstrapper {
	return &Bootstrapper{
		builder:     builder,
		store:       store,
		log:         builder.log,
		APISecret:   apiSecret,
		Description: description,
	}
}

// Load reads the persisted credential. A missing record yields Uninitialized.
func (b *Bootstrapper) Load(ctx context.Context) (Credential, error) {
	if b.store == nil {
		return Uninitialized{}, nil
	}

	record, err := b.store.Load(ctx)
	if errors.Is(err, interfaces.ErrCredentialsNotFound) {
		b.log.Info("No stored credentials, starting from scratch")
		return Uninitialized{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}

	credential, err := FromRecord(record)
	if err != nil {
		return nil, err
	}

	b.log.Info("Loaded stored credentials", slog.String("stage", credential.Stage().String()))
	return credential, nil
}

// Run advances start to a Session.
//
// Only successful transitions are persisted. When a transition fails in a way
// that falling back can fix, the credential degrades by exactly one stage in
// memory and the chain continues from there; the stored record keeps the
// furthest completed stage until a transition succeeds. Each stage may fail at
// most once per run; a second failure, or one that cannot fall back, is
// returned as the *BuildError.
func (b *Bootstrapper) Run(ctx context.Context, start Credential) (Session, error) {
	secret := b.secretFor(start)
	current := b.reconcileSecret(start, secret)
	failed := make(map[Stage]bool)

	for {
		if session, ok := current.(Session); ok {
			return session, nil
		}

		next, err := b.step(ctx, current, secret)
		if err == nil {
			b.log.Info("Credential advanced",
				slog.String("from", current.Stage().String()),
				slog.String("to", next.Stage().String()))
			if err := b.persist(ctx, next); err != nil {
				return Session{}, err
			}
			current = next
			continue
		}

		var buildErr *BuildError
		if !errors.As(err, &buildErr) || !buildErr.CanFallBack() || failed[current.Stage()] {
			return Session{}, err
		}
		failed[current.Stage()] = true

		fallback := buildErr.Fallback()
		b.log.Warn("Credential transition failed, falling back",
			slog.String("stage", current.Stage().String()),
			slog.String("fallback", fallback.Stage().String()),
			slog.String("reason", string(buildErr.Reason)),
			"err", buildErr.Err)
		current = fallback
	}
}

func (b *Bootstrapper) step(ctx context.Context, c Credential, secret string) (Credential, error) {
	switch c := c.(type) {
	case Uninitialized:
		return b.builder.GenerateKey(c)
	case Initialized:
		return b.builder.InstallDevice(ctx, c)
	case Installed:
		return b.builder.RegisterDevice(ctx, c, secret, b.Description)
	case Registered:
		return b.builder.CreateSession(ctx, c)
	case UncheckedSession:
		return b.builder.CheckSession(ctx, c)
	default:
		return nil, fmt.Errorf("cannot advance credential of type %T", c)
	}
}

// secretFor returns the configured API secret, or the one start was
// registered with when none is configured, so a fallback to Installed can
// register again.
func (b *Bootstrapper) secretFor(start Credential) string {
	if b.APISecret != "" {
		return b.APISecret
	}
	if registered, ok := registration(start); ok {
		return registered.APISecret
	}
	return ""
}

func registration(c Credential) (Registered, bool) {
	switch c := c.(type) {
	case Registered:
		return c, true
	case UncheckedSession:
		return c.Registered, true
	case Session:
		return c.Registered, true
	default:
		return Registered{}, false
	}
}

// reconcileSecret degrades a credential registered with a different API
// secret, one stage at a time, until it is no longer registered. A session
// is bound to the secret it was created with, so neither the session nor the
// registration can be reused. Nothing is persisted until the device is
// registered again.
func (b *Bootstrapper) reconcileSecret(c Credential, secret string) Credential {
	registered, ok := registration(c)
	if !ok || secret == "" || registered.APISecret == secret {
		return c
	}

	b.log.Info("API secret changed, registering device again")
	for c.Stage() > StageInstalled {
		prev, ok := Degrade(c)
		if !ok {
			break
		}
		b.log.Debug("Dropping credential stage",
			slog.String("from", c.Stage().String()),
			slog.String("to", prev.Stage().String()))
		c = prev
	}
	return c
}

func (b *Bootstrapper) persist(ctx context.Context, c Credential) error {
	if b.store == nil {
		return nil
	}

	record, err := ToRecord(c)
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}
	if err := b.store.Save(ctx, record); err != nil {
		return fmt.Errorf("failed to persist credentials at stage %s: %w", c.Stage(), err)
	}
	return nil
}
