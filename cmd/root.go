package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/chatmover/internal/config"
)

// Version is set at build time via -ldflags "-X github.com/nextlevelbuilder/chatmover/cmd.Version=v1.0.0"
var Version = "dev"

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "chatmover",
	Short: "Move a chat account's full history into shared supergroups",
	Long: "chatmover migrates the complete conversation history of account A into\n" +
		"fresh supergroups, one per conversation, and invites account B into each.\n" +
		"Messages are forwarded server-side, so media never touches this machine.\n" +
		"Progress is durable: an interrupted run resumes where it stopped.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Secrets may live in a .env next to the binary; real env wins.
		_ = godotenv.Load()
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $CHATMOVER_CONFIG or ~/.chatmover/config.json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(resetCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(doctorCmd())
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(ledgerCmd())
	rootCmd.AddCommand(versionCmd())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("chatmover %s\n", Version)
		},
	}
}

func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if v := os.Getenv("CHATMOVER_CONFIG"); v != "" {
		return v
	}
	return config.ExpandHome("~/.chatmover/config.json")
}

// loadConfig reads the config file and overlays the environment. When
// credentials is true the result is validated for a live account run;
// commands that only touch local files pass false.
func loadConfig(credentials bool) (*config.Config, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, err
	}
	if credentials {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("%w (run: chatmover init)", err)
		}
	}
	return cfg, nil
}

// confirm asks a yes/no question on the terminal.
func confirm(title string) (bool, error) {
	var ok bool
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().Title(title).Value(&ok),
	))
	if err := form.Run(); err != nil {
		return false, err
	}
	return ok, nil
}

// Execute runs the root cobra command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
