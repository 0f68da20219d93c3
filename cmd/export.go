package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/chatmover/internal/config"
	"github.com/nextlevelbuilder/chatmover/internal/progress"
)

func exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <path>",
		Short: "Export progress for another machine",
		Long: "Writes the progress state wrapped in a versioned envelope. Pass - to\n" +
			"write to stdout.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(false)
			if err != nil {
				return err
			}
			store := progress.NewStore(config.ExpandHome(cfg.Migration.ProgressPath))
			if err := store.Load(); err != nil {
				return err
			}

			if args[0] == "-" {
				return store.Export(os.Stdout)
			}
			f, err := os.OpenFile(args[0], os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
			if err != nil {
				return err
			}
			defer f.Close()
			if err := store.Export(f); err != nil {
				return err
			}
			fmt.Printf("Progress exported to %s.\n", args[0])
			return nil
		},
	}
}
