package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/chatmover/internal/config"
	"github.com/nextlevelbuilder/chatmover/internal/progress"
)

func importCmd() *cobra.Command {
	var (
		strategy string
		yes      bool
	)
	cmd := &cobra.Command{
		Use:   "import <path>",
		Short: "Import progress exported elsewhere",
		Long: "Merges an exported progress file into the local one. The default\n" +
			"strategy keeps whichever record is further along per conversation.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			strat, err := progress.ParseMergeStrategy(strategy)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(false)
			if err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			incoming, err := progress.Import(f)
			if err != nil {
				return err
			}

			store := progress.NewStore(config.ExpandHome(cfg.Migration.ProgressPath))
			if err := store.Load(); err != nil {
				return err
			}
			base := store.Snapshot()

			if !yes {
				ok, err := confirm(fmt.Sprintf("Merge %d imported conversation(s) into %d local one(s) with %s?",
					len(incoming.Dialogs), len(base.Dialogs), strat))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Println("Aborted.")
					return nil
				}
			}

			store.SetCurrent(progress.Merge(base, incoming, strat))
			if err := store.Save(); err != nil {
				return err
			}
			fmt.Printf("Progress imported with strategy %s.\n", strat)
			return nil
		},
	}
	cmd.Flags().StringVar(&strategy, "strategy", string(progress.MergeProgress),
		"merge strategy: overwrite-all, skip-completed, or merge-progress")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}
