// Package fleetlock serializes use of the in-game ship fleet across every
// worker of an account. The lock is a file created with O_EXCL; the JSON
// payload identifies the holder so apparently dead holders can be evicted
// and release never removes another process's lock.
package fleetlock

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/andrescamacho/polisbot/internal/domain/fleet"
	"github.com/andrescamacho/polisbot/internal/domain/shared"
	"github.com/andrescamacho/polisbot/internal/infrastructure/proc"
)

const defaultPollInterval = 5 * time.Second

// Payload is the lock file content
type Payload struct {
	PID        int             `json:"pid"`
	AcquiredAt time.Time       `json:"acquired_at"`
	ShipClass  fleet.ShipClass `json:"ship_class"`
	AccountKey string          `json:"account_key"`
}

// Lock is the file-backed mutex for one (account, ship class)
type Lock struct {
	path           string
	accountKey     string
	shipClass      fleet.ShipClass
	staleThreshold time.Duration
	pollInterval   time.Duration
	clock          shared.Clock

	alive func(pid int) bool
	held  bool
}

// New creates a lock over the given file path
func New(path, accountKey string, class fleet.ShipClass, staleThreshold time.Duration, clock shared.Clock) *Lock {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	return &Lock{
		path:           path,
		accountKey:     accountKey,
		shipClass:      class,
		staleThreshold: staleThreshold,
		pollInterval:   defaultPollInterval,
		clock:          clock,
		alive:          proc.Alive,
	}
}

// SetPollInterval shortens the retry sleep (tests)
func (l *Lock) SetPollInterval(d time.Duration) { l.pollInterval = d }

// SetLivenessCheck overrides the holder PID check (tests)
func (l *Lock) SetLivenessCheck(alive func(pid int) bool) { l.alive = alive }

// Held reports whether this instance currently owns the lock
func (l *Lock) Held() bool { return l.held }

// Acquire attempts an exclusive create until success or timeout. Existing
// lock files are evicted when their holder looks dead: payload older than
// the stale threshold, or holder PID no longer alive.
func (l *Lock) Acquire(timeout time.Duration) error {
	deadline := l.clock.Now().Add(timeout)

	for {
		if err := l.tryCreate(); err == nil {
			l.held = true
			return nil
		} else if !os.IsExist(err) {
			return fmt.Errorf("failed to create fleet lock: %w", err)
		}

		if l.evictIfStale() {
			continue
		}

		if !l.clock.Now().Before(deadline) {
			return shared.NewLockTimeoutError(timeout)
		}
		l.clock.Sleep(l.pollInterval)
	}
}

// Release unlinks the lock only when the recorded PID is ours. On mismatch
// another process owns it now and nothing is removed.
func (l *Lock) Release() error {
	l.held = false

	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read fleet lock: %w", err)
	}

	var payload Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil
	}
	if payload.PID != os.Getpid() {
		return nil
	}

	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove fleet lock: %w", err)
	}
	return nil
}

func (l *Lock) tryCreate() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	payload := Payload{
		PID:        os.Getpid(),
		AcquiredAt: l.clock.Now(),
		ShipClass:  l.shipClass,
		AccountKey: l.accountKey,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		return err
	}
	return nil
}

// evictIfStale removes the current lock file when the holder appears dead.
// Returns true when an eviction happened and the create should be retried
// immediately.
func (l *Lock) evictIfStale() bool {
	data, err := os.ReadFile(l.path)
	if err != nil {
		// Holder released between our create attempt and this read
		return os.IsNotExist(err)
	}

	var payload Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		// Unreadable payload counts as stale
		return os.Remove(l.path) == nil
	}

	if l.clock.Now().Sub(payload.AcquiredAt) > l.staleThreshold {
		return os.Remove(l.path) == nil
	}
	if payload.PID != os.Getpid() && !l.alive(payload.PID) {
		return os.Remove(l.path) == nil
	}
	return false
}
