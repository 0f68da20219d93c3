package cmd

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/chatmover/internal/config"
)

var (
	hashRe  = regexp.MustCompile(`^[0-9a-fA-F]{32}$`)
	phoneRe = regexp.MustCompile(`^\+\d{7,15}$`)
)

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the config file interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := resolveConfigPath()
			cfg, err := config.Load(path)
			if err != nil {
				// Unreadable config is not fatal here: init exists to
				// write a fresh one.
				cfg = config.Default()
			}

			apiID := ""
			if cfg.Account.APIID > 0 {
				apiID = strconv.Itoa(cfg.Account.APIID)
			}

			form := huh.NewForm(huh.NewGroup(
				huh.NewInput().
					Title("API id").
					Description("Numeric application id from my.telegram.org").
					Value(&apiID).
					Validate(func(s string) error {
						n, err := strconv.Atoi(s)
						if err != nil || n <= 0 {
							return fmt.Errorf("must be a positive integer")
						}
						return nil
					}),
				huh.NewInput().
					Title("API hash").
					Description("32 hex characters, issued with the API id").
					Value(&cfg.Account.APIHash).
					Validate(func(s string) error {
						if !hashRe.MatchString(s) {
							return fmt.Errorf("must be 32 hex characters")
						}
						return nil
					}),
				huh.NewInput().
					Title("Phone of account A").
					Description("The account whose history is migrated, e.g. +15551234567").
					Value(&cfg.Account.PhoneA).
					Validate(func(s string) error {
						if !phoneRe.MatchString(s) {
							return fmt.Errorf("must be + followed by 7-15 digits")
						}
						return nil
					}),
				huh.NewInput().
					Title("Target user B").
					Description("Username or phone of the account invited into every group").
					Value(&cfg.Account.TargetUserB).
					Validate(func(s string) error {
						if s == "" {
							return fmt.Errorf("required")
						}
						return nil
					}),
			))
			if err := form.Run(); err != nil {
				if errors.Is(err, huh.ErrUserAborted) {
					fmt.Println("Aborted.")
					return nil
				}
				return err
			}

			cfg.Account.APIID, _ = strconv.Atoi(apiID)
			if err := config.Save(path, cfg); err != nil {
				return err
			}
			fmt.Printf("Config written to %s (0600).\n", path)
			fmt.Println("Credentials can also come from CHATMOVER_API_ID, CHATMOVER_API_HASH,")
			fmt.Println("CHATMOVER_PHONE_A, and CHATMOVER_TARGET_USER_B; env wins over the file.")
			return nil
		},
	}
}
