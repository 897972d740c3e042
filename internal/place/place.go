// Package place manages the exclusive coordinator lease on a hardware
// target.
//
// The wire protocol to the coordinator is not defined here: a Transport
// implementation is injected by the caller. What this package owns is the
// acquisition semantics — acquire only when free, recognize a lease we
// already hold, never preempt a foreign holder — and the serialization of
// coordinator calls through one session worker so no two calls are ever
// in flight at once.
package place

import (
	"context"
	"fmt"
	"os"
	"os/user"
)

// Info is the coordinator's view of a place.
type Info struct {
	Name string
	// Holder is the identity token of the current lease holder, or ""
	// when the place is free.
	Holder string
}

// Transport is the coordinator client the session drives. Implementations
// handle one call at a time; the session guarantees that.
type Transport interface {
	// GetPlace fetches the current state of a place.
	GetPlace(ctx context.Context, name string) (Info, error)
	// AcquirePlace requests the lease for the calling identity.
	AcquirePlace(ctx context.Context, name string) error
	// ReleasePlace gives the lease back.
	ReleasePlace(ctx context.Context, name string) error
	// Sync blocks until previously requested state changes are visible.
	Sync(ctx context.Context) error
	// Stop ends the coordinator session.
	Stop(ctx context.Context) error
	// Close releases the transport.
	Close() error
}

// Identity is who holds a lease: the acquiring host and user.
type Identity struct {
	Host string
	User string
}

// LocalIdentity determines the identity of this process.
func LocalIdentity() (Identity, error) {
	host, err := os.Hostname()
	if err != nil {
		return Identity{}, fmt.Errorf("determine hostname: %w", err)
	}
	u, err := user.Current()
	if err != nil {
		return Identity{}, fmt.Errorf("determine user: %w", err)
	}
	return Identity{Host: host, User: u.Username}, nil
}

// Token renders the identity the way the coordinator records holders.
func (i Identity) Token() string {
	return i.Host + "/" + i.User
}

// ConflictError is returned when a place is leased by someone else.
// Preempting a foreign lease is never an option.
type ConflictError struct {
	Place  string
	Holder string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("place %q is acquired by %s", e.Place, e.Holder)
}
