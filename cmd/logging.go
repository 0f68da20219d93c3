package cmd

import (
	"context"
	"log/slog"
	"os"

	"github.com/nextlevelbuilder/chatmover/internal/config"
	"github.com/nextlevelbuilder/chatmover/internal/masking"
)

// setupLogging installs the default logger: text to stderr plus the same
// records appended to the configured log file. Phone numbers and hex
// secrets are masked in every sink. Returns a close func for the file.
func setupLogging(cfg *config.Config) func() {
	level := parseLevel(cfg.Logging.Level)
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level, ReplaceAttr: maskAttr}

	handlers := []slog.Handler{slog.NewTextHandler(os.Stderr, opts)}
	closeFile := func() {}
	if path := cfg.Logging.FilePath; path != "" {
		f, err := os.OpenFile(config.ExpandHome(path), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			slog.Warn("log.file_unavailable", "path", path, "error", err)
		} else {
			handlers = append(handlers, slog.NewTextHandler(f, opts))
			closeFile = func() { f.Close() }
		}
	}

	slog.SetDefault(slog.New(fanout(handlers)))
	return closeFile
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// maskAttr scrubs string values, the message included, through the
// masking rules before any sink sees them.
func maskAttr(groups []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindString {
		a.Value = slog.StringValue(masking.Apply(a.Value.String()))
	}
	return a
}

// fanoutHandler duplicates records to every sink.
type fanoutHandler struct {
	handlers []slog.Handler
}

func fanout(hs []slog.Handler) slog.Handler {
	if len(hs) == 1 {
		return hs[0]
	}
	return &fanoutHandler{handlers: hs}
}

func (h *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, hh := range h.handlers {
		if hh.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, hh := range h.handlers {
		if !hh.Enabled(ctx, r.Level) {
			continue
		}
		if err := hh.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (h *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, hh := range h.handlers {
		next[i] = hh.WithAttrs(attrs)
	}
	return &fanoutHandler{handlers: next}
}

func (h *fanoutHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, hh := range h.handlers {
		next[i] = hh.WithGroup(name)
	}
	return &fanoutHandler{handlers: next}
}
