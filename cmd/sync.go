package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/chatmover/internal/config"
	"github.com/nextlevelbuilder/chatmover/internal/dialogs"
	"github.com/nextlevelbuilder/chatmover/internal/progress"
	"github.com/nextlevelbuilder/chatmover/internal/ratelimit"
	"github.com/nextlevelbuilder/chatmover/internal/realtime"
	"github.com/nextlevelbuilder/chatmover/internal/statusd"
	"github.com/nextlevelbuilder/chatmover/internal/syncd"
	"github.com/nextlevelbuilder/chatmover/internal/telegram"
	"github.com/nextlevelbuilder/chatmover/pkg/events"
)

func syncCmd() *cobra.Command {
	var (
		every      string
		statusAddr string
	)
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Keep completed groups current with new messages",
		Long: "Runs until interrupted: new messages in completed conversations are\n" +
			"forwarded to their destination groups, and server message counts are\n" +
			"re-checked on the given cron schedule.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(true)
			if err != nil {
				return err
			}
			closeLog := setupLogging(cfg)
			defer closeLog()

			ctx, cancel := signalContext()
			defer cancel()

			client, err := connectClient(ctx, cfg)
			if err != nil {
				return err
			}

			store := progress.NewStore(config.ExpandHome(cfg.Migration.ProgressPath))
			limiter := ratelimit.New(cfg.BatchDelay(), cfg.MinBatchDelay(), cfg.MaxBatchDelay())

			var sink events.Sink
			if addr := pickStatusAddr(statusAddr, cfg); addr != "" {
				srv := statusd.New(addr, store, limiter)
				sink = srv.Sink()
				go func() {
					if err := srv.Start(ctx); err != nil {
						slog.Error("statusd.failed", "error", err)
					}
				}()
			}

			d, err := syncd.New(syncd.Deps{
				Cfg:     cfg,
				Client:  client,
				Store:   store,
				Enum:    dialogs.NewEnumerator(client),
				Tail:    realtime.New(client, limiter, telegram.CryptoNonceSource{}, cfg.Realtime.MaxQueueSize, sink),
				Limiter: limiter,
				Sink:    sink,
			}, every, 0)
			if err != nil {
				return err
			}
			return d.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&every, "every", "*/30 * * * *", "cron schedule for the count verification pass")
	cmd.Flags().StringVar(&statusAddr, "status-addr", "", "serve live status on this address")
	return cmd
}
