package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/andrescamacho/polisbot/internal/adapters/game"
	"github.com/andrescamacho/polisbot/internal/adapters/notify"
	"github.com/andrescamacho/polisbot/internal/adapters/persistence"
	"github.com/andrescamacho/polisbot/internal/application/inputs"
	"github.com/andrescamacho/polisbot/internal/application/modules"
	"github.com/andrescamacho/polisbot/internal/application/supervisor"
	"github.com/andrescamacho/polisbot/internal/domain/ports"
	"github.com/andrescamacho/polisbot/internal/domain/shared"
	"github.com/andrescamacho/polisbot/internal/infrastructure/config"
	"github.com/andrescamacho/polisbot/internal/infrastructure/database"
	"github.com/andrescamacho/polisbot/internal/infrastructure/mailbox"
	"github.com/andrescamacho/polisbot/internal/infrastructure/paths"
	"github.com/andrescamacho/polisbot/internal/infrastructure/registry"
)

func newWorkerCmd() *cobra.Command {
	var (
		moduleName   string
		snapshotPath string
		handoffPath  string
		inputsPath   string
	)

	cmd := &cobra.Command{
		Use:    "worker",
		Hidden: true,
		Short:  "Run one module as a background worker (spawned by the shell)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd.Context(), moduleName, snapshotPath, handoffPath, inputsPath)
		},
	}
	cmd.Flags().StringVar(&moduleName, "module", "", "module to run")
	cmd.Flags().StringVar(&snapshotPath, "snapshot", "", "serialized session snapshot file")
	cmd.Flags().StringVar(&handoffPath, "handoff", "", "handoff file to touch on detach")
	cmd.Flags().StringVar(&inputsPath, "inputs", "", "recorded inputs file for replay")
	cmd.MarkFlagRequired("module")
	cmd.MarkFlagRequired("snapshot")
	cmd.MarkFlagRequired("handoff")
	return cmd
}

func runWorker(ctx context.Context, moduleName, snapshotPath, handoffPath, inputsPath string) error {
	cfg := config.MustLoadConfig(configPath)
	clock := shared.NewRealClock()

	snap, err := loadSnapshot(snapshotPath)
	if err != nil {
		return err
	}

	session, err := game.Restore(snap, cfg.Session, clock)
	if err != nil {
		return fmt.Errorf("failed to restore session: %w", err)
	}

	p, err := paths.New()
	if err != nil {
		return err
	}
	worldKey := snap.World.Key()
	acctKey := snap.Account.Key()
	reg := registry.New(p.ProcessRegistry(worldKey, acctKey), cfg.Supervisor.FrozenThreshold, clock)
	mbox := mailbox.New(p.ErrorMailbox(worldKey, acctKey), clock)
	notifier := notify.NewWebhookNotifier(cfg.Notify.WebhookURL)

	// Replayed runs never prompt; live runs record their answers for the
	// parent to fold into an auto-load entry
	recorder := inputs.NewRecorder()
	var prompter ports.Prompter
	replaying := false
	if inputsPath != "" {
		recorded, err := inputs.Load(inputsPath)
		if err != nil {
			return err
		}
		prompter = inputs.NewReplayPrompter(recorded, inputs.FailingPrompter{})
		replaying = true
	} else {
		prompter = inputs.NewRecordingPrompter(NewStdPrompter(), recorder)
	}

	deps := &modules.Deps{
		Config:   cfg,
		Paths:    p,
		Session:  session,
		Prompter: prompter,
		Notifier: notifier,
		Activity: openActivity(cfg, p, clock),
		Clock:    clock,
	}

	mod, ok := modules.ByName(moduleName)
	if !ok {
		return fmt.Errorf("unknown module %q", moduleName)
	}

	job, err := mod.Build(ctx, deps)
	if err != nil {
		return fmt.Errorf("module %s config phase failed: %w", moduleName, err)
	}

	flushRecorder := recorder
	if replaying {
		flushRecorder = nil
	}
	label := fmt.Sprintf("%s (%s)", mod.Name, snap.PlayerName)
	if err := supervisor.EnterBackgroundMode(session, reg, p, flushRecorder, label, handoffPath); err != nil {
		return err
	}
	defer reg.Remove(os.Getpid())

	session.StartPinger(ctx)
	defer session.StopPinger()
	session.SetStatus("running")

	if deps.Activity != nil {
		deps.Activity.LogEvent(os.Getpid(), mod.Name, "started", label)
	}

	err = supervisor.RunWithRestarts(ctx, cfg.Supervisor, mod.Name, mbox, notifier, clock, job)

	if deps.Activity != nil {
		outcome := "finished"
		if err != nil {
			outcome = "failed"
		}
		deps.Activity.LogEvent(os.Getpid(), mod.Name, outcome, fmt.Sprintf("%v", err))
	}
	return err
}

func loadSnapshot(path string) (*game.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read session snapshot: %w", err)
	}
	// Single-use; it carries live cookies
	os.Remove(path)

	var snap game.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse session snapshot: %w", err)
	}
	return &snap, nil
}

func openActivity(cfg *config.Config, p *paths.Paths, clock shared.Clock) *persistence.ActivityLog {
	if cfg.Database.Type == "sqlite" && cfg.Database.Path == "" {
		cfg.Database.Path = p.ActivityDB()
	}
	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil
	}
	activity, err := persistence.NewActivityLog(db, clock)
	if err != nil {
		return nil
	}
	return activity
}
