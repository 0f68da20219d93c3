package cmd

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/chatmover/internal/config"
	"github.com/nextlevelbuilder/chatmover/internal/ledger"
)

// resolveLedgerPath ignores ledger.enabled: the admin verbs manage the
// file whether or not runs currently write to it.
func resolveLedgerPath() (string, error) {
	cfg, err := loadConfig(false)
	if err != nil {
		return "", err
	}
	return config.ExpandHome(cfg.Ledger.Path), nil
}

func ledgerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Audit ledger management",
	}
	cmd.AddCommand(ledgerUpCmd())
	cmd.AddCommand(ledgerDownCmd())
	cmd.AddCommand(ledgerVersionCmd())
	cmd.AddCommand(ledgerForceCmd())
	cmd.AddCommand(ledgerStatsCmd())
	return cmd
}

func ledgerUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolveLedgerPath()
			if err != nil {
				return err
			}
			m, err := ledger.Migrator(path)
			if err != nil {
				return err
			}
			defer m.Close()

			if err := m.Up(); err != nil && err != migrate.ErrNoChange {
				return fmt.Errorf("ledger up: %w", err)
			}
			v, dirty, _ := m.Version()
			slog.Info("ledger migration complete", "version", v, "dirty", dirty)
			return nil
		},
	}
}

func ledgerDownCmd() *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back schema migrations (default: 1 step)",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolveLedgerPath()
			if err != nil {
				return err
			}
			m, err := ledger.Migrator(path)
			if err != nil {
				return err
			}
			defer m.Close()

			if steps <= 0 {
				steps = 1
			}
			if err := m.Steps(-steps); err != nil && err != migrate.ErrNoChange {
				return fmt.Errorf("ledger down: %w", err)
			}
			v, dirty, _ := m.Version()
			slog.Info("ledger rollback complete", "version", v, "dirty", dirty)
			return nil
		},
	}
	cmd.Flags().IntVarP(&steps, "steps", "n", 1, "number of steps to roll back")
	return cmd
}

func ledgerVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolveLedgerPath()
			if err != nil {
				return err
			}
			m, err := ledger.Migrator(path)
			if err != nil {
				return err
			}
			defer m.Close()

			v, dirty, err := m.Version()
			if err != nil {
				return fmt.Errorf("get version: %w", err)
			}
			fmt.Printf("version: %d, dirty: %v\n", v, dirty)
			return nil
		},
	}
}

func ledgerForceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "force <version>",
		Short: "Force set schema version (no migration applied)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid version: %w", err)
			}
			path, err := resolveLedgerPath()
			if err != nil {
				return err
			}
			m, err := ledger.Migrator(path)
			if err != nil {
				return err
			}
			defer m.Close()

			if err := m.Force(version); err != nil {
				return fmt.Errorf("force version: %w", err)
			}
			slog.Info("forced ledger version", "version", version)
			return nil
		},
	}
}

func ledgerStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize recorded runs and forwards",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolveLedgerPath()
			if err != nil {
				return err
			}
			led, err := ledger.Open(cmd.Context(), path)
			if err != nil {
				return err
			}
			defer led.Close()

			s, err := led.Stats(cmd.Context())
			if err != nil {
				return err
			}
			lastRun := s.LastRunAt
			if lastRun == "" {
				lastRun = "(never)"
			}
			fmt.Printf("%-10s %d\n", "Runs:", s.Runs)
			fmt.Printf("%-10s %d\n", "Forwards:", s.Forwards)
			fmt.Printf("%-10s %d\n", "Dialogs:", s.Dialogs)
			fmt.Printf("%-10s %s\n", "Last run:", lastRun)
			return nil
		},
	}
}
