package steps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cucumber/godog"

	"github.com/andrescamacho/polisbot/internal/domain/fleet"
	"github.com/andrescamacho/polisbot/internal/domain/shared"
	"github.com/andrescamacho/polisbot/internal/infrastructure/fleetlock"
)

const lockStaleThreshold = 10 * time.Minute

type fleetLockContext struct {
	dir        string
	clock      *shared.MockClock
	lock       *fleetlock.Lock
	acquireErr error
	secondErr  error
}

func (fc *fleetLockContext) reset() error {
	dir, err := os.MkdirTemp("", "polisbot_bdd_lock_*")
	if err != nil {
		return err
	}
	fc.dir = dir
	fc.clock = shared.NewMockClock(time.Time{})
	fc.lock = fc.newLock()
	fc.acquireErr = nil
	fc.secondErr = nil
	return nil
}

func (fc *fleetLockContext) newLock() *fleetlock.Lock {
	l := fleetlock.New(fc.lockPath(), "bot", fleet.ShipClassHeavy, lockStaleThreshold, fc.clock)
	l.SetPollInterval(time.Second)
	return l
}

func (fc *fleetLockContext) lockPath() string {
	return filepath.Join(fc.dir, ".polisbot_shared_heavy_59_en_bot.lock")
}

func (fc *fleetLockContext) writeHolder(pid int, acquiredAt time.Time) error {
	payload := fleetlock.Payload{
		PID:        pid,
		AcquiredAt: acquiredAt,
		ShipClass:  fleet.ShipClassHeavy,
		AccountKey: "bot",
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return os.WriteFile(fc.lockPath(), data, 0o600)
}

func (fc *fleetLockContext) noLockIsHeld() error {
	return nil
}

func (fc *fleetLockContext) aWorkerAcquiresTheLock() error {
	fc.acquireErr = fc.lock.Acquire(30 * time.Second)
	return nil
}

func (fc *fleetLockContext) aSecondWorkerTriesWithin(seconds int) error {
	second := fc.newLock()
	fc.secondErr = second.Acquire(time.Duration(seconds) * time.Second)
	return nil
}

func (fc *fleetLockContext) theSecondAcquisitionShouldTimeOut() error {
	var timeoutErr *shared.LockTimeoutError
	if !errors.As(fc.secondErr, &timeoutErr) {
		return fmt.Errorf("expected a lock timeout, got %v", fc.secondErr)
	}
	return nil
}

func (fc *fleetLockContext) aLockHeldByALiveProcessSince(minutes int) error {
	fc.lock.SetLivenessCheck(func(int) bool { return true })
	return fc.writeHolder(4242, fc.clock.Now().Add(-time.Duration(minutes)*time.Minute))
}

func (fc *fleetLockContext) aLockHeldByADeadProcess() error {
	fc.lock.SetLivenessCheck(func(int) bool { return false })
	return fc.writeHolder(4242, fc.clock.Now())
}

func (fc *fleetLockContext) aCorruptLockFile() error {
	return os.WriteFile(fc.lockPath(), []byte("{not json"), 0o600)
}

func (fc *fleetLockContext) aLockHeldByAnotherLiveProcess() error {
	fc.lock.SetLivenessCheck(func(int) bool { return true })
	return fc.writeHolder(4242, fc.clock.Now())
}

func (fc *fleetLockContext) aWorkerReleasesItsHandle() error {
	return fc.lock.Release()
}

func (fc *fleetLockContext) theAcquisitionShouldSucceed() error {
	if fc.acquireErr != nil {
		return fmt.Errorf("expected acquisition to succeed, got %v", fc.acquireErr)
	}
	if !fc.lock.Held() {
		return fmt.Errorf("expected the lock to be held")
	}
	return nil
}

func (fc *fleetLockContext) theLockFileShouldStillExist() error {
	if _, err := os.Stat(fc.lockPath()); err != nil {
		return fmt.Errorf("expected the lock file to survive: %v", err)
	}
	return nil
}

// InitializeFleetLockScenario registers fleet lock steps
func InitializeFleetLockScenario(sc *godog.ScenarioContext) {
	fc := &fleetLockContext{}

	sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		return ctx, fc.reset()
	})
	sc.After(func(ctx context.Context, _ *godog.Scenario, _ error) (context.Context, error) {
		if fc.dir != "" {
			os.RemoveAll(fc.dir)
		}
		return ctx, nil
	})

	sc.Step(`^no fleet lock is held$`, fc.noLockIsHeld)
	sc.Step(`^a worker acquires the fleet lock$`, fc.aWorkerAcquiresTheLock)
	sc.Step(`^a second worker tries to acquire the fleet lock within (\d+) seconds$`, fc.aSecondWorkerTriesWithin)
	sc.Step(`^the second acquisition should time out$`, fc.theSecondAcquisitionShouldTimeOut)
	sc.Step(`^a fleet lock held by a live process since (\d+) minutes ago$`, fc.aLockHeldByALiveProcessSince)
	sc.Step(`^a fleet lock held by a dead process$`, fc.aLockHeldByADeadProcess)
	sc.Step(`^a corrupt fleet lock file$`, fc.aCorruptLockFile)
	sc.Step(`^a fleet lock held by another live process$`, fc.aLockHeldByAnotherLiveProcess)
	sc.Step(`^a worker releases its lock handle$`, fc.aWorkerReleasesItsHandle)
	sc.Step(`^the fleet lock file should still exist$`, fc.theLockFileShouldStillExist)
	sc.Step(`^the acquisition should succeed$`, fc.theAcquisitionShouldSucceed)
}
