package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nextlevelbuilder/chatmover/internal/config"
	"github.com/nextlevelbuilder/chatmover/internal/session"
	"github.com/nextlevelbuilder/chatmover/internal/telegram"
)

// connectClient authenticates account A through the registered wire
// transport. The transport persists refreshed session strings back to the
// session store as they are issued.
func connectClient(ctx context.Context, cfg *config.Config) (telegram.Client, error) {
	sess := session.NewStore(config.ExpandHome(cfg.Account.SessionPath))
	saved, err := sess.Load()
	if err != nil {
		return nil, err
	}
	client, err := telegram.Dial(ctx, telegram.DialOptions{
		APIID:     cfg.Account.APIID,
		APIHash:   cfg.Account.APIHash,
		Phone:     cfg.Account.PhoneA,
		Session:   saved,
		OnSession: sess.Save,
	})
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	return client, nil
}

// signalContext returns a context cancelled by SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutdown.signal", "signal", sig.String())
		cancel()
	}()
	return ctx, cancel
}

// parseDateFlag accepts RFC3339 or a bare date. A bare date used as an
// upper bound covers its whole day.
func parseDateFlag(s string, endOfDay bool) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, fmt.Errorf("want RFC3339 or YYYY-MM-DD, got %q", s)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Second)
	}
	return &t, nil
}
