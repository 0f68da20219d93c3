package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/chatmover/internal/config"
	"github.com/nextlevelbuilder/chatmover/internal/dialogs"
	"github.com/nextlevelbuilder/chatmover/internal/engine"
	"github.com/nextlevelbuilder/chatmover/internal/groups"
	"github.com/nextlevelbuilder/chatmover/internal/ledger"
	"github.com/nextlevelbuilder/chatmover/internal/masking"
	"github.com/nextlevelbuilder/chatmover/internal/migrator"
	"github.com/nextlevelbuilder/chatmover/internal/progress"
	"github.com/nextlevelbuilder/chatmover/internal/ratelimit"
	"github.com/nextlevelbuilder/chatmover/internal/realtime"
	"github.com/nextlevelbuilder/chatmover/internal/report"
	"github.com/nextlevelbuilder/chatmover/internal/statusd"
	"github.com/nextlevelbuilder/chatmover/internal/telegram"
	"github.com/nextlevelbuilder/chatmover/internal/telemetry"
	"github.com/nextlevelbuilder/chatmover/pkg/events"
)

type migrateFlags struct {
	dryRun     bool
	dialogIDs  []int64
	from       string
	to         string
	statusAddr string
	yes        bool
}

func migrateCmd() *cobra.Command {
	var f migrateFlags
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migrate conversations into fresh supergroups",
		Long: "Creates one supergroup per conversation, invites the target account,\n" +
			"and forwards the history server-side in paced batches. Interrupted or\n" +
			"quota-stopped runs pick up from the progress file on the next invocation.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(f)
		},
	}
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "preview the run: nothing is created, invited, or forwarded")
	cmd.Flags().Int64SliceVar(&f.dialogIDs, "dialog", nil, "restrict to this conversation id (repeatable)")
	cmd.Flags().StringVar(&f.from, "from", "", "only messages on or after this date (RFC3339 or YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.to, "to", "", "only messages on or before this date (RFC3339 or YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.statusAddr, "status-addr", "", "serve live status on this address, e.g. 127.0.0.1:18791")
	cmd.Flags().BoolVarP(&f.yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func runMigrate(f migrateFlags) error {
	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}
	closeLog := setupLogging(cfg)
	defer closeLog()

	from, err := parseDateFlag(f.from, false)
	if err != nil {
		return fmt.Errorf("--from: %w", err)
	}
	to, err := parseDateFlag(f.to, true)
	if err != nil {
		return fmt.Errorf("--to: %w", err)
	}

	if !f.yes && !f.dryRun {
		ok, err := confirmMigration(cfg)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("Aborted.")
			return nil
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			slog.Warn("telemetry.shutdown_failed", "error", err)
		}
	}()

	client, err := connectClient(ctx, cfg)
	if err != nil {
		return err
	}

	store := progress.NewStore(config.ExpandHome(cfg.Migration.ProgressPath))
	limiter := ratelimit.New(cfg.BatchDelay(), cfg.MinBatchDelay(), cfg.MaxBatchDelay())
	nonces := telegram.CryptoNonceSource{}

	// The status server must exist before the engine and tail are built so
	// they share its event sink.
	var sink events.Sink
	if addr := pickStatusAddr(f.statusAddr, cfg); addr != "" {
		srv := statusd.New(addr, store, limiter)
		sink = srv.Sink()
		go func() {
			if err := srv.Start(ctx); err != nil {
				slog.Error("statusd.failed", "error", err)
			}
		}()
	}

	var led *ledger.Ledger
	if cfg.Ledger.Enabled {
		led, err = ledger.Open(ctx, config.ExpandHome(cfg.Ledger.Path))
		if err != nil {
			return err
		}
		defer led.Close()
	}

	m := migrator.New(migrator.Deps{
		Cfg:      cfg,
		Client:   client,
		Store:    store,
		Enum:     dialogs.NewEnumerator(client),
		Groups:   groups.NewManager(client, cfg.Migration.GroupNamePrefix, cfg.GroupCreationDelay()),
		Engine:   engine.New(client, limiter, nonces, engine.WithSink(sink)),
		Tail:     realtime.New(client, limiter, nonces, cfg.Realtime.MaxQueueSize, sink),
		Limiter:  limiter,
		Reporter: report.NewAggregator(),
		Ledger:   led,
		Sink:     sink,
	})

	runErr := m.Run(ctx, migrator.Opts{
		DryRun:  f.dryRun,
		OnlyIDs: f.dialogIDs,
		From:    from,
		To:      to,
	})

	if g := store.Snapshot(); !f.dryRun && len(g.Dialogs) > 0 {
		fmt.Println(report.Generate(g))
	}
	return runErr
}

func pickStatusAddr(flagAddr string, cfg *config.Config) string {
	if flagAddr != "" {
		return flagAddr
	}
	return cfg.Status.Addr
}

func confirmMigration(cfg *config.Config) (bool, error) {
	var ok bool
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(fmt.Sprintf("Migrate history from %s into new supergroups and invite %s?",
				masking.Phone(cfg.Account.PhoneA), cfg.Account.TargetUserB)).
			Description("Forwarded copies keep original senders and dates. Progress is saved to " +
				cfg.Migration.ProgressPath + " and the run can be interrupted at any time.").
			Affirmative("Migrate").
			Negative("Cancel").
			Value(&ok),
	))
	if err := form.Run(); err != nil {
		return false, err
	}
	return ok, nil
}
