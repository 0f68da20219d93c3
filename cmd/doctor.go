package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/chatmover/internal/config"
	"github.com/nextlevelbuilder/chatmover/internal/ledger"
	"github.com/nextlevelbuilder/chatmover/internal/progress"
	"github.com/nextlevelbuilder/chatmover/internal/telegram"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check environment and configuration health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor()
		},
	}
}

func runDoctor() error {
	fmt.Println("chatmover doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config:   %s (LOAD FAILED: %s)\n", cfgPath, err)
		fmt.Println()
		fmt.Println("Doctor check complete.")
		return nil
	}

	// The ledger and progress checks hit the filesystem, so everything runs
	// in parallel under one deadline and prints in a fixed order after.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var configLine, sessionLine, progressLine, ledgerLine, transportLine string
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { configLine = checkConfig(cfgPath, cfg); return nil })
	g.Go(func() error { sessionLine = checkSession(cfg); return nil })
	g.Go(func() error { progressLine = checkProgress(cfg); return nil })
	g.Go(func() error { ledgerLine = checkLedger(ctx, cfg); return nil })
	g.Go(func() error { transportLine = checkTransport(); return nil })
	_ = g.Wait()

	fmt.Printf("  %-12s %s\n", "Config:", configLine)
	fmt.Printf("  %-12s %s\n", "Account:", accountLine(cfg))
	fmt.Printf("  %-12s %s\n", "Session:", sessionLine)
	fmt.Printf("  %-12s %s\n", "Progress:", progressLine)
	fmt.Printf("  %-12s %s\n", "Ledger:", ledgerLine)
	fmt.Printf("  %-12s %s\n", "Transport:", transportLine)

	fmt.Println()
	fmt.Println("Doctor check complete.")
	return nil
}

func checkConfig(path string, cfg *config.Config) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Sprintf("%s (NOT FOUND, using defaults + env)", path)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Sprintf("%s (INCOMPLETE: %s)", path, err)
	}
	return fmt.Sprintf("%s (OK)", path)
}

// accountLine shows which accounts are involved, masked the same way the
// logs mask them.
func accountLine(cfg *config.Config) string {
	masked := cfg.MaskedCopy()
	if masked.Account.PhoneA == "" && masked.Account.TargetUserB == "" {
		return "not configured"
	}
	return fmt.Sprintf("%s -> %s", masked.Account.PhoneA, masked.Account.TargetUserB)
}

func checkSession(cfg *config.Config) string {
	path := config.ExpandHome(cfg.Account.SessionPath)
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Sprintf("%s (none yet, first run signs in)", path)
	}
	if perm := fi.Mode().Perm(); perm&0o077 != 0 {
		return fmt.Sprintf("%s (INSECURE PERMISSIONS %o, want 600)", path, perm)
	}
	return fmt.Sprintf("%s (OK)", path)
}

func checkProgress(cfg *config.Config) string {
	path := config.ExpandHome(cfg.Migration.ProgressPath)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Sprintf("%s (none yet)", path)
	}
	store := progress.NewStore(path)
	if err := store.Load(); err != nil {
		return fmt.Sprintf("%s (UNREADABLE: %s)", path, err)
	}
	g := store.Snapshot()
	return fmt.Sprintf("%s (phase %s, %d dialogs, %d messages migrated)",
		path, g.Phase, len(g.Dialogs), g.Stats.MigratedMessages)
}

func checkLedger(ctx context.Context, cfg *config.Config) string {
	if !cfg.Ledger.Enabled {
		return "disabled"
	}
	path := config.ExpandHome(cfg.Ledger.Path)
	led, err := ledger.Open(ctx, path)
	if err != nil {
		return fmt.Sprintf("%s (OPEN FAILED: %s)", path, err)
	}
	defer led.Close()
	s, err := led.Stats(ctx)
	if err != nil {
		return fmt.Sprintf("%s (QUERY FAILED: %s)", path, err)
	}
	return fmt.Sprintf("%s (%d runs, %d forwards across %d dialogs)", path, s.Runs, s.Forwards, s.Dialogs)
}

func checkTransport() string {
	if telegram.DialerRegistered() {
		return "registered"
	}
	return "NOT LINKED (live commands will fail)"
}
