package cmd

import (
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ccxcon/ccxcon/internal/ver"
	"github.com/ccxcon/ccxcon/server/database"
)

func NewInstanceCmd(parent *cobra.Command, version ver.Version) {
	cmd := &cobra.Command{
		Use:     "instance",
		GroupID: "admin",
		Short:   "Manages the edX instances courses are backed by",
	}
	parent.AddCommand(cmd)

	add := &cobra.Command{
		Use:   "add <instance_url>",
		Short: "Registers an edX instance",
		Long: `Registers an edX instance. For example:

ccxcon instance add https://courses.example.com --client-id abc --client-secret def --username staff --grant-token xyz

The grant token is exchanged for the first access token on the next sync.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), cmd, version, componentCLI)
			if err != nil {
				return err
			}
			defer a.Close()

			clientID, _ := cmd.Flags().GetString("client-id")
			clientSecret, _ := cmd.Flags().GetString("client-secret")
			username, _ := cmd.Flags().GetString("username")
			grantToken, _ := cmd.Flags().GetString("grant-token")

			instance, err := a.db.CreateInstance(cmd.Context(), database.BackingInstance{
				InstanceURL:       args[0],
				OAuthClientID:     clientID,
				OAuthClientSecret: clientSecret,
				Username:          username,
				GrantToken:        grantToken,
			})
			if err != nil {
				return err
			}
			cmd.Printf("Registered instance %s (%s)\n", instance.InstanceURL, instance.ID)
			return nil
		},
	}
	add.Flags().String("client-id", "", "oauth client id issued by the instance")
	add.Flags().String("client-secret", "", "oauth client secret issued by the instance")
	add.Flags().String("username", "", "staff username used to read course blocks")
	add.Flags().String("grant-token", "", "authorization code for the first token exchange")
	_ = add.MarkFlagRequired("client-id")
	_ = add.MarkFlagRequired("client-secret")
	cmd.AddCommand(add)

	list := &cobra.Command{
		Use:   "list",
		Short: "Lists the registered edX instances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), cmd, version, componentCLI)
			if err != nil {
				return err
			}
			defer a.Close()

			instances, err := a.db.ListInstances(cmd.Context())
			if err != nil {
				return err
			}
			now := time.Now()
			for _, instance := range instances {
				cmd.Printf("%s  %s  token: %s\n", instance.ID, instance.InstanceURL, tokenState(instance, now))
			}
			return nil
		},
	}
	cmd.AddCommand(list)
}

func tokenState(instance database.BackingInstance, now time.Time) string {
	if instance.AccessTokenExpiration == nil {
		return "none"
	}
	state := "expires " + humanize.RelTime(*instance.AccessTokenExpiration, now, "ago", "from now")
	if instance.IsExpired(now) {
		state += " (refreshed on next use)"
	}
	return state
}
