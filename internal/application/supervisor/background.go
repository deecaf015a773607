package supervisor

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"

	"github.com/andrescamacho/polisbot/internal/adapters/game"
	"github.com/andrescamacho/polisbot/internal/application/inputs"
	"github.com/andrescamacho/polisbot/internal/domain/ports"
	"github.com/andrescamacho/polisbot/internal/domain/shared"
	"github.com/andrescamacho/polisbot/internal/infrastructure/config"
	"github.com/andrescamacho/polisbot/internal/infrastructure/mailbox"
	"github.com/andrescamacho/polisbot/internal/infrastructure/paths"
	"github.com/andrescamacho/polisbot/internal/infrastructure/registry"
)

// EnterBackgroundMode transitions a worker from its interactive config phase
// to detached operation: marks the session as a worker, stops honoring
// Ctrl-C, redirects its output to the worker log, flushes any recorded
// inputs, registers itself, and finally touches the handoff file to release
// the waiting parent.
func EnterBackgroundMode(
	session *game.Session,
	reg *registry.Registry,
	p *paths.Paths,
	recorder *inputs.Recorder,
	label string,
	handoffPath string,
) error {
	session.MarkWorker()
	session.SetRegistry(reg)

	signal.Ignore(os.Interrupt)

	logPath := p.WorkerLog(os.Getpid())
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return fmt.Errorf("failed to create worker log directory: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open worker log: %w", err)
	}
	if err := redirectOutput(logFile); err != nil {
		return err
	}

	if recorder != nil && len(recorder.Answers()) > 0 {
		if err := recorder.Flush(p.RecordedInputs()); err != nil {
			log.Printf("[worker] failed to flush recorded inputs: %v", err)
		}
	}

	now := time.Now()
	if err := reg.Register(registry.WorkerRecord{
		PID:           os.Getpid(),
		Label:         label,
		StartedAt:     now,
		Status:        "starting",
		LastHeartbeat: now,
	}); err != nil {
		return fmt.Errorf("failed to register worker: %w", err)
	}

	if handoffPath != "" {
		if err := os.WriteFile(handoffPath, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0o600); err != nil {
			return fmt.Errorf("failed to signal handoff: %w", err)
		}
	}
	return nil
}

// redirectOutput points descriptors 1 and 2 at the worker log, then the
// Go-level writers. The descriptor-level dup is what captures subprocess and
// C-level output; reassigning os.Stdout alone would miss it.
func redirectOutput(logFile *os.File) error {
	fd := int(logFile.Fd())
	if err := unix.Dup2(fd, 1); err != nil {
		return fmt.Errorf("failed to redirect stdout: %w", err)
	}
	if err := unix.Dup2(fd, 2); err != nil {
		return fmt.Errorf("failed to redirect stderr: %w", err)
	}
	os.Stdout = logFile
	os.Stderr = logFile
	log.SetOutput(logFile)
	return nil
}

// RunWithRestarts wraps a worker's background phase in a bounded-restart
// loop: uncaught failures back off exponentially (capped) and re-enter the
// phase; after MaxRestarts consecutive failures the worker reports through
// the error mailbox and the notifier, then gives up.
func RunWithRestarts(
	ctx context.Context,
	cfg config.SupervisorConfig,
	moduleName string,
	mbox *mailbox.Mailbox,
	notifier ports.Notifier,
	clock shared.Clock,
	phase func(ctx context.Context) error,
) error {
	if clock == nil {
		clock = shared.NewRealClock()
	}

	var lastErr error
	for failures := 0; failures < cfg.MaxRestarts; failures++ {
		err := runPhase(ctx, phase)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		lastErr = err
		backoff := restartBackoff(cfg.BackoffBase, cfg.BackoffCap, failures)
		log.Printf("[worker] module %s failed (%d/%d), restarting in %s: %v",
			moduleName, failures+1, cfg.MaxRestarts, backoff, err)

		if notifier != nil {
			msg := fmt.Sprintf("%s worker failed, restarting in %s: %v", moduleName, backoff, err)
			if nerr := notifier.Send(ctx, msg, nil); nerr != nil {
				log.Printf("[worker] notification failed: %v", nerr)
			}
		}

		clock.Sleep(backoff)
	}

	crash := shared.NewModuleCrashError(moduleName, lastErr)
	if mbox != nil {
		if merr := mbox.Report(os.Getpid(), moduleName, crash.Error()); merr != nil {
			log.Printf("[worker] failed to report crash: %v", merr)
		}
	}
	if notifier != nil {
		msg := fmt.Sprintf("%s worker gave up after %d failures: %v", moduleName, cfg.MaxRestarts, lastErr)
		if nerr := notifier.Send(ctx, msg, nil); nerr != nil {
			log.Printf("[worker] notification failed: %v", nerr)
		}
	}
	return crash
}

// runPhase converts a panic in the background phase into an error so the
// restart loop sees it
func runPhase(ctx context.Context, phase func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in background phase: %v", r)
		}
	}()
	return phase(ctx)
}

// restartBackoff doubles the base per consecutive failure, capped
func restartBackoff(base, limit time.Duration, failures int) time.Duration {
	backoff := base
	for i := 0; i < failures; i++ {
		backoff *= 2
		if backoff >= limit {
			return limit
		}
	}
	if backoff > limit {
		return limit
	}
	return backoff
}
