package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/chatmover/internal/config"
	"github.com/nextlevelbuilder/chatmover/internal/progress"
)

func resetCmd() *cobra.Command {
	var (
		ids   []int64
		all   bool
		force bool
	)
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Forget recorded progress",
		Long: "Returns conversations to pending so the next run migrates them from\n" +
			"scratch, or deletes the whole progress file. Destination groups already\n" +
			"created are not touched; delete stale ones by hand.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(ids) > 0) {
				return fmt.Errorf("pass either --dialog or --all")
			}
			cfg, err := loadConfig(false)
			if err != nil {
				return err
			}
			path := config.ExpandHome(cfg.Migration.ProgressPath)

			if all {
				if _, err := os.Stat(path); os.IsNotExist(err) {
					fmt.Printf("No progress file at %s.\n", path)
					return nil
				}
				if !force {
					ok, err := confirm(fmt.Sprintf("Delete %s? All recorded progress is lost.", path))
					if err != nil {
						return err
					}
					if !ok {
						fmt.Println("Aborted.")
						return nil
					}
				}
				if err := os.Remove(path); err != nil {
					return err
				}
				fmt.Println("Progress file deleted.")
				return nil
			}

			store := progress.NewStore(path)
			if err := store.Load(); err != nil {
				return err
			}
			if !force {
				ok, err := confirm(fmt.Sprintf("Reset %d conversation(s) to pending? Their destination groups are forgotten.", len(ids)))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Println("Aborted.")
					return nil
				}
			}
			for _, id := range ids {
				if err := store.ResetConversation(strconv.FormatInt(id, 10)); err != nil {
					return err
				}
			}
			if err := store.Save(); err != nil {
				return err
			}
			fmt.Printf("%d conversation(s) reset.\n", len(ids))
			return nil
		},
	}
	cmd.Flags().Int64SliceVar(&ids, "dialog", nil, "conversation id to reset (repeatable)")
	cmd.Flags().BoolVar(&all, "all", false, "delete the progress file entirely")
	cmd.Flags().BoolVar(&force, "force", false, "skip the confirmation prompt")
	return cmd
}
