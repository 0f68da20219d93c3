package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/chatmover/internal/config"
	"github.com/nextlevelbuilder/chatmover/internal/progress"
	"github.com/nextlevelbuilder/chatmover/internal/report"
)

func statusCmd() *cobra.Command {
	var (
		watch  bool
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(false)
			if err != nil {
				return err
			}
			path := config.ExpandHome(cfg.Migration.ProgressPath)
			if _, err := os.Stat(path); os.IsNotExist(err) {
				fmt.Printf("No progress file at %s. Nothing has been migrated yet.\n", path)
				return nil
			}
			if watch {
				return watchStatus(path, asJSON)
			}
			return renderStatus(path, asJSON)
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "re-render whenever the progress file changes")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw progress document")
	return cmd
}

func renderStatus(path string, asJSON bool) error {
	store := progress.NewStore(path)
	if err := store.Load(); err != nil {
		return err
	}
	g := store.Snapshot()
	if asJSON {
		out, err := json.MarshalIndent(g, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}
	fmt.Println(report.Generate(g))
	return nil
}

// watchStatus re-renders on every change to the progress file. Saves are
// atomic rename-into-place, so the watch is on the directory and events are
// filtered by file name.
func watchStatus(path string, asJSON bool) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(path)); err != nil {
		return err
	}
	target := filepath.Base(path)

	ctx, cancel := signalContext()
	defer cancel()

	render := func() {
		if !asJSON {
			fmt.Print("\x1b[2J\x1b[H")
		}
		if err := renderStatus(path, asJSON); err != nil {
			slog.Warn("status.render_failed", "error", err)
		}
	}
	render()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != target {
				continue
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Rename) {
				render()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Warn("status.watch_error", "error", err)
		}
	}
}
