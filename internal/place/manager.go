package place

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/saschahauer/barebox-bringup/internal/logging"
)

// Manager runs the lease lifecycle for one place: acquire on the way in,
// release on the way out, but only when the lease is actually ours to
// give back.
type Manager struct {
	session  *Session
	identity Identity
	logger   *slog.Logger

	place string
	owned bool
}

// NewManager creates a lease manager bound to a session and identity.
func NewManager(session *Session, identity Identity, logger *slog.Logger) *Manager {
	return &Manager{
		session:  session,
		identity: identity,
		logger:   logging.Ensure(logger),
	}
}

// Acquire takes the lease on name when it is free. A lease already held
// by this same host and user is treated as borrowed: Acquire reports
// owned=false and teardown will leave it alone. A lease held by anyone
// else is a ConflictError; no coordinator state is touched in that case.
func (m *Manager) Acquire(ctx context.Context, name string) (bool, error) {
	info, err := m.session.GetPlace(ctx, name)
	if err != nil {
		return false, fmt.Errorf("query place %q: %w", name, err)
	}

	switch info.Holder {
	case "":
		if err := m.session.AcquirePlace(ctx, name); err != nil {
			return false, fmt.Errorf("acquire place %q: %w", name, err)
		}
		m.place = name
		m.owned = true
		m.logger.Info("place acquired", "place", name)
		return true, nil
	case m.identity.Token():
		// Already ours. If this process acquired it earlier, ownership
		// stands; a lease inherited from an earlier session is borrowed
		// and must not be released on teardown.
		m.place = name
		m.logger.Info("place already acquired by us", "place", name, "owned", m.owned)
		return false, nil
	default:
		return false, &ConflictError{Place: name, Holder: info.Holder}
	}
}

// Owned reports whether this process acquired the lease itself.
func (m *Manager) Owned() bool { return m.owned }

// Release gives the lease back iff we acquired it. A no-op otherwise.
func (m *Manager) Release(ctx context.Context) error {
	if !m.owned {
		return nil
	}
	if err := m.session.ReleasePlace(ctx, m.place); err != nil {
		return fmt.Errorf("release place %q: %w", m.place, err)
	}
	m.owned = false
	m.logger.Info("place released", "place", m.place)
	return nil
}
