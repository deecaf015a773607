package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/andrescamacho/polisbot/internal/adapters/game"
	"github.com/andrescamacho/polisbot/internal/adapters/lobby"
	"github.com/andrescamacho/polisbot/internal/adapters/notify"
	"github.com/andrescamacho/polisbot/internal/adapters/persistence"
	"github.com/andrescamacho/polisbot/internal/application/modules"
	"github.com/andrescamacho/polisbot/internal/application/supervisor"
	"github.com/andrescamacho/polisbot/internal/domain/account"
	"github.com/andrescamacho/polisbot/internal/domain/ports"
	"github.com/andrescamacho/polisbot/internal/domain/shared"
	"github.com/andrescamacho/polisbot/internal/infrastructure/autoload"
	"github.com/andrescamacho/polisbot/internal/infrastructure/config"
	"github.com/andrescamacho/polisbot/internal/infrastructure/database"
	"github.com/andrescamacho/polisbot/internal/infrastructure/mailbox"
	"github.com/andrescamacho/polisbot/internal/infrastructure/paths"
	"github.com/andrescamacho/polisbot/internal/infrastructure/registry"
)

// shell holds everything the parent menu loop needs after login
type shell struct {
	cfg      *config.Config
	paths    *paths.Paths
	prompter ports.Prompter
	notifier ports.Notifier
	clock    shared.Clock

	store      *account.Store
	passphrase string
	accounts   []*account.Account
	acct       *account.Account

	session  *game.Session
	registry *registry.Registry
	mailbox  *mailbox.Mailbox
	sup      *supervisor.JobSupervisor
	autoload *autoload.Store
	activity *persistence.ActivityLog
}

func runShell(ctx context.Context) error {
	cfg := config.MustLoadConfig(configPath)
	cfg.Login.Interactive = true

	p, err := paths.New()
	if err != nil {
		return err
	}

	sh := &shell{
		cfg:      cfg,
		paths:    p,
		prompter: NewStdPrompter(),
		notifier: notify.NewWebhookNotifier(cfg.Notify.WebhookURL),
		clock:    shared.NewRealClock(),
	}

	if err := sh.openAccounts(); err != nil {
		return err
	}
	if err := sh.login(ctx); err != nil {
		return err
	}
	defer sh.session.StopPinger()

	sh.wireAccountState(ctx)
	sh.autoLaunch()

	return sh.menuLoop(ctx)
}

// openAccounts unlocks the encrypted store, creating it on first run
func (sh *shell) openAccounts() error {
	passphrase, err := account.ResolvePassphrase(sh.prompter)
	if err != nil {
		return err
	}
	sh.passphrase = passphrase
	sh.store = account.NewStore(sh.paths.AccountStore())

	if sh.store.Exists() {
		accounts, err := sh.store.Load(passphrase)
		if err != nil {
			return fmt.Errorf("failed to unlock account store: %w", err)
		}
		sh.accounts = accounts
	}

	for len(sh.accounts) == 0 {
		fmt.Println("No accounts stored yet.")
		acct, err := sh.promptNewAccount()
		if err != nil {
			return err
		}
		sh.accounts = append(sh.accounts, acct)
		if err := sh.store.Save(sh.passphrase, sh.accounts); err != nil {
			return err
		}
	}
	return nil
}

func (sh *shell) promptNewAccount() (*account.Account, error) {
	email, err := sh.prompter.Read("Lobby email")
	if err != nil {
		return nil, err
	}
	secret, err := sh.prompter.ReadSecret("Lobby password")
	if err != nil {
		return nil, err
	}
	return &account.Account{Email: email, Secret: secret}, nil
}

// login selects an account and runs the login machine
func (sh *shell) login(ctx context.Context) error {
	idx := 0
	if len(sh.accounts) > 1 {
		options := make([]string, len(sh.accounts))
		for i, a := range sh.accounts {
			options[i] = a.Email
		}
		chosen, err := sh.prompter.Choose("Select account", options)
		if err != nil {
			return err
		}
		idx = chosen
	}
	sh.acct = sh.accounts[idx]

	solver := NewManualSolver(sh.prompter, sh.notifier)
	session, res, err := lobby.Login(ctx, sh.cfg, sh.acct, sh.acct.DefaultWorld, sh.prompter, solver, sh.clock)
	if err != nil {
		return err
	}
	sh.session = session
	fmt.Printf("Logged in as %s on %s (%s)\n", res.PlayerName, res.WorldName, res.World)

	// Cached tokens were refreshed during login
	if err := sh.store.Save(sh.passphrase, sh.accounts); err != nil {
		fmt.Printf("warning: failed to persist refreshed tokens: %v\n", err)
	}
	return nil
}

// wireAccountState builds the per-(account, world) file-backed collaborators
func (sh *shell) wireAccountState(ctx context.Context) {
	worldKey := sh.session.World().Key()
	acctKey := sh.acct.Key()

	sh.registry = registry.New(
		sh.paths.ProcessRegistry(worldKey, acctKey),
		sh.cfg.Supervisor.FrozenThreshold,
		sh.clock,
	)
	sh.mailbox = mailbox.New(sh.paths.ErrorMailbox(worldKey, acctKey), sh.clock)
	sh.autoload = autoload.New(sh.paths.AutoLoader(worldKey, acctKey), sh.clock)
	sh.sup = supervisor.New(sh.cfg.Supervisor, sh.paths, sh.registry, sh.mailbox, sh.autoload, sh.clock)

	if sh.cfg.Database.Type == "sqlite" && sh.cfg.Database.Path == "" {
		sh.cfg.Database.Path = sh.paths.ActivityDB()
	}
	if db, err := database.Connect(sh.cfg.Database); err == nil {
		if activity, err := persistence.NewActivityLog(db, sh.clock); err == nil {
			sh.activity = activity
		}
	} else {
		fmt.Printf("warning: activity log unavailable: %v\n", err)
	}

	sh.session.SetRegistry(sh.registry)
	sh.session.StartPinger(ctx)
}

// autoLaunch runs the startup auto-load policy and reports what it did
func (sh *shell) autoLaunch() {
	report, err := sh.sup.LaunchEnabled(sh.session.Serialize())
	if err != nil {
		fmt.Printf("warning: auto-load failed: %v\n", err)
		return
	}
	for _, name := range report.Spawned {
		fmt.Printf("auto-loaded %s\n", name)
	}
	for _, name := range report.Replaced {
		fmt.Printf("replaced frozen %s worker\n", name)
	}
	for _, warning := range report.Warnings {
		fmt.Printf("warning: %s\n", warning)
	}
}

// menuLoop renders the section menu until the user quits. Critical errors
// from workers are drained and shown before every render.
func (sh *shell) menuLoop(ctx context.Context) error {
	for {
		sh.drainErrors()

		options := make([]string, 0, len(modules.Sections)+2)
		for _, section := range modules.Sections {
			options = append(options, string(section))
		}
		options = append(options, "Task status", "Quit")

		choice, err := sh.prompter.Choose("Main menu", options)
		if err != nil {
			return err
		}

		switch {
		case choice < len(modules.Sections):
			if err := sh.sectionMenu(ctx, modules.Sections[choice]); err != nil {
				fmt.Printf("error: %v\n", err)
			}
		case choice == len(modules.Sections):
			if err := sh.statusScreen(); err != nil {
				fmt.Printf("error: %v\n", err)
			}
		default:
			fmt.Println("Workers keep running in the background.")
			return nil
		}
	}
}

func (sh *shell) drainErrors() {
	errors, err := sh.mailbox.Drain()
	if err != nil {
		fmt.Printf("warning: failed to drain error mailbox: %v\n", err)
		return
	}
	for _, e := range errors {
		fmt.Printf("!! worker %d (%s) at %s: %s\n",
			e.PID, e.Module, e.Timestamp.Format(time.RFC3339), e.Message)
	}
}

func (sh *shell) sectionMenu(ctx context.Context, section modules.Section) error {
	mods := modules.BySection(section)
	if len(mods) == 0 {
		fmt.Println("Nothing here yet.")
		return nil
	}

	options := make([]string, 0, len(mods)+1)
	for _, m := range mods {
		options = append(options, fmt.Sprintf("%s — %s", m.Label, m.Description))
	}
	options = append(options, "Back")

	choice, err := sh.prompter.Choose(string(section), options)
	if err != nil {
		return err
	}
	if choice == len(mods) {
		return nil
	}
	return sh.launchModule(mods[choice])
}

// launchModule dispatches a worker for the module and offers to save the
// recorded configuration as an auto-load entry
func (sh *shell) launchModule(mod modules.Module) error {
	snap := sh.session.Serialize()
	pid, recorded, err := sh.sup.Dispatch(mod.Name, snap, nil)
	if err != nil {
		return err
	}
	fmt.Printf("%s running as worker %d\n", mod.Label, pid)

	if len(recorded) == 0 {
		return nil
	}
	save, err := sh.prompter.Confirm("Save this configuration for auto-load?")
	if err != nil || !save {
		return nil
	}
	if _, err := sh.autoload.Add(mod.Name, mod.Number, recorded, mod.Label); err != nil {
		return err
	}
	fmt.Println("Saved. It will relaunch after every login.")
	return nil
}

// statusScreen renders worker health and offers restart/kill per worker
func (sh *shell) statusScreen() error {
	live, err := sh.registry.Refresh()
	if err != nil {
		return err
	}
	if len(live) == 0 {
		fmt.Println("No workers running.")
		return nil
	}

	options := make([]string, 0, len(live)+1)
	for _, rec := range live {
		age := sh.registry.HeartbeatAge(rec).Round(time.Second)
		frozen := ""
		if sh.registry.IsFrozen(rec) {
			frozen = " [FROZEN]"
		}
		options = append(options, fmt.Sprintf("pid %d  %s  %s  heartbeat %s ago%s",
			rec.PID, rec.Label, rec.Status, age, frozen))
	}
	options = append(options, "Back")

	choice, err := sh.prompter.Choose("Workers", options)
	if err != nil {
		return err
	}
	if choice == len(live) {
		return nil
	}
	return sh.workerActions(live[choice])
}

func (sh *shell) workerActions(rec registry.WorkerRecord) error {
	action, err := sh.prompter.Choose(fmt.Sprintf("Worker %d (%s)", rec.PID, rec.Label),
		[]string{"Restart", "Kill", "Leave it"})
	if err != nil {
		return err
	}

	switch action {
	case 0:
		moduleName := moduleNameFromLabel(rec.Label)
		pid, err := sh.sup.Restart(rec.PID, moduleName, sh.session.Serialize())
		if err != nil {
			return err
		}
		fmt.Printf("restarted as worker %d\n", pid)
	case 1:
		if err := sh.sup.Kill(rec.PID); err != nil {
			return err
		}
		fmt.Println("termination signal sent")
	}
	return nil
}

// moduleNameFromLabel recovers the stable module name from a worker label of
// the form "name (detail)"
func moduleNameFromLabel(label string) string {
	for i, r := range label {
		if r == ' ' || r == '(' {
			return label[:i]
		}
	}
	return label
}
