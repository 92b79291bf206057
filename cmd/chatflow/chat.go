package main

import (
	"context"
	"log/slog"

	"github.com/aretw0/chatflow/internal/cli"
	"github.com/aretw0/chatflow/internal/logging"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to your flows from the terminal",
	Long: `Starts a local chat simulator. What you type is handled as an inbound message
from a contact and every message the engine sends is rendered in the terminal
instead of being delivered.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		if !cmd.Flags().Changed("log-level") && !settings.IsSet("log-level") {
			// Keep startup logs out of the conversation.
			logger = logging.New(slog.LevelWarn, "text")
		}

		var opts cli.ChatOptions
		opts.ContactID, _ = cmd.Flags().GetString("contact")
		opts.PhoneNumberID, _ = cmd.Flags().GetString("phone-number")
		opts.ProjectID, _ = cmd.Flags().GetString("project")
		opts.TenantID, _ = cmd.Flags().GetString("tenant")
		opts.Watch, _ = cmd.Flags().GetBool("watch")
		opts.In = cmd.InOrStdin()
		opts.Out = cmd.OutOrStdout()

		sigCtx := cli.NewSignalContext(context.Background())
		defer sigCtx.Cancel()

		return cli.RunChat(sigCtx, cfg, logger, opts)
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().String("contact", "local", "contact id the simulator speaks as")
	chatCmd.Flags().String("phone-number", "simulator", "business phone number id")
	chatCmd.Flags().String("project", "default", "project owning the flows")
	chatCmd.Flags().String("tenant", "default", "tenant owning the project")
	chatCmd.Flags().BoolP("watch", "w", false, "reload flows when their documents change")
}
