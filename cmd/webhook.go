package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ccxcon/ccxcon/internal/ver"
	"github.com/ccxcon/ccxcon/server/database"
)

func NewWebhookCmd(parent *cobra.Command, version ver.Version) {
	cmd := &cobra.Command{
		Use:     "webhook",
		GroupID: "admin",
		Short:   "Manages webhook subscribers",
	}
	parent.AddCommand(cmd)

	add := &cobra.Command{
		Use:   "add <url>",
		Short: "Registers a webhook subscriber and prints its signing secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			disabled, _ := cmd.Flags().GetBool("disabled")

			a, err := newApp(cmd.Context(), cmd, version, componentCLI)
			if err != nil {
				return err
			}
			defer a.Close()

			webhook, err := a.db.CreateWebhook(cmd.Context(), args[0], !disabled)
			if err != nil {
				return err
			}
			cmd.Printf("Registered webhook %s\nURL: %s\nSecret: %s\nEnabled: %t\n", webhook.ID, webhook.URL, webhook.Secret, webhook.Enabled)
			return nil
		},
	}
	add.Flags().Bool("disabled", false, "register the webhook without enabling it")
	cmd.AddCommand(add)

	list := &cobra.Command{
		Use:   "list",
		Short: "Lists webhook subscribers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), cmd, version, componentCLI)
			if err != nil {
				return err
			}
			defer a.Close()

			webhooks, err := a.db.ListWebhooks(cmd.Context())
			if err != nil {
				return err
			}
			for _, webhook := range webhooks {
				state := "enabled"
				if !webhook.Enabled {
					state = "disabled"
				}
				cmd.Printf("%s  %-8s  %s\n", webhook.ID, state, webhook.URL)
			}
			return nil
		},
	}
	cmd.AddCommand(list)

	for _, toggle := range []struct {
		use     string
		short   string
		enabled bool
	}{
		{use: "enable <id>", short: "Enables a webhook subscriber", enabled: true},
		{use: "disable <id>", short: "Disables a webhook subscriber", enabled: false},
	} {
		enabled := toggle.enabled
		cmd.AddCommand(&cobra.Command{
			Use:   toggle.use,
			Short: toggle.short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := uuid.Parse(args[0])
				if err != nil {
					return fmt.Errorf("invalid webhook id: %w", err)
				}

				a, err := newApp(cmd.Context(), cmd, version, componentCLI)
				if err != nil {
					return err
				}
				defer a.Close()

				webhook, err := a.db.UpdateWebhook(cmd.Context(), id, database.WebhookUpdate{Enabled: &enabled})
				if database.IsNotFound(err) {
					return fmt.Errorf("webhook %s not found", id)
				}
				if err != nil {
					return err
				}
				cmd.Printf("Webhook %s enabled: %t\n", webhook.ID, webhook.Enabled)
				return nil
			},
		})
	}
}
