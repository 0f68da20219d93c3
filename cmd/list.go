package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/chatmover/internal/dialogs"
)

func listCmd() *cobra.Command {
	var (
		typeFilter   string
		archivedOnly bool
		asJSON       bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the account's conversations",
		Long: "Enumerates every conversation on account A and marks which ones the\n" +
			"configured filter would migrate.",
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

			convs, err := dialogs.NewEnumerator(client).List(ctx)
			if err != nil {
				return err
			}

			var shown []dialogs.Conversation
			for _, c := range convs {
				if archivedOnly && !c.Archived {
					continue
				}
				if typeFilter != "" && c.Type != dialogs.Type(typeFilter) {
					continue
				}
				shown = append(shown, c)
			}

			selected := make(map[int64]bool)
			for _, c := range dialogs.Filter(shown, cfg.Migration.Filter) {
				selected[c.ID] = true
			}

			if asJSON {
				type row struct {
					ID       int64  `json:"id"`
					Type     string `json:"type"`
					Name     string `json:"name"`
					Messages int    `json:"messages"`
					Archived bool   `json:"archived"`
					Selected bool   `json:"selected"`
				}
				rows := make([]row, 0, len(shown))
				for _, c := range shown {
					rows = append(rows, row{
						ID:       c.ID,
						Type:     string(c.Type),
						Name:     c.Name,
						Messages: c.MessageCount,
						Archived: c.Archived,
						Selected: selected[c.ID],
					})
				}
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}

			fmt.Printf("%-14s %-12s %8s %-8s %s\n", "ID", "TYPE", "MSGS", "MIGRATE", "NAME")
			for _, c := range shown {
				mark := "-"
				if selected[c.ID] {
					mark = "yes"
				}
				fmt.Printf("%-14d %-12s %8d %-8s %s\n",
					c.ID, c.Type, c.MessageCount, mark, runewidth.Truncate(c.Name, 40, "…"))
			}
			fmt.Printf("\n%d of %d conversations match the configured filter.\n", len(selected), len(shown))
			return nil
		},
	}
	cmd.Flags().StringVar(&typeFilter, "type", "", "only this conversation type (private, group, supergroup, channel, bot)")
	cmd.Flags().BoolVar(&archivedOnly, "archived", false, "only archived conversations")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print machine-readable output")
	return cmd
}
