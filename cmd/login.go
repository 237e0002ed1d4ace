package cmd

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/ccxcon/ccxcon/internal/cfg"
)

var clientKeys = []string{"server", "token", "client_id", "client_secret"}

func NewLoginCmd(parent *cobra.Command) {
	cmd := &cobra.Command{
		Use:     "login",
		GroupID: "client",
		Short:   "Stores api credentials in $HOME/.ccxcon",
		Long: `Stores api credentials in $HOME/.ccxcon. For example:

ccxcon login --server https://ccxcon.example.com --client-id mitx --client-secret ...
ccxcon login --token 5f0c...

Client credentials are checked against the server's token endpoint before they are saved.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			server, _ := cmd.Flags().GetString("server")
			token, _ := cmd.Flags().GetString("token")
			clientID, _ := cmd.Flags().GetString("client-id")
			clientSecret, _ := cmd.Flags().GetString("client-secret")
			if server == "" {
				server = viper.GetString("server")
			}

			if token == "" {
				if clientID == "" || clientSecret == "" {
					return ErrNoCredentials
				}
				conf := clientcredentials.Config{
					ClientID:     clientID,
					ClientSecret: clientSecret,
					TokenURL:     strings.TrimSuffix(server, "/") + "/o/token",
				}
				if _, err := conf.Token(cmd.Context()); err != nil {
					return fmt.Errorf("failed to verify client credentials: %w", err)
				}
			}

			path := cfg.Path()
			if err := cfg.Update(path, func(m map[string]string) {
				m["server"] = server
				if token != "" {
					m["token"] = token
					delete(m, "client_id")
					delete(m, "client_secret")
					return
				}
				delete(m, "token")
				m["client_id"] = clientID
				m["client_secret"] = clientSecret
			}); err != nil {
				return fmt.Errorf("failed to update %s: %w", path, err)
			}
			cmd.Printf("Saved credentials for %s to %s\n", server, path)
			return nil
		},
	}
	cmd.Flags().StringP("server", "s", "", "ccxcon server address")
	cmd.Flags().StringP("token", "t", "", "api client key")
	cmd.Flags().String("client-id", "", "oauth client id")
	cmd.Flags().String("client-secret", "", "oauth client secret")
	cmd.MarkFlagsMutuallyExclusive("token", "client-id")
	parent.AddCommand(cmd)

	logout := &cobra.Command{
		Use:     "logout",
		GroupID: "client",
		Short:   "Removes stored api credentials from $HOME/.ccxcon",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := cfg.Path()
			if err := cfg.Update(path, func(m map[string]string) {
				delete(m, "token")
				delete(m, "client_id")
				delete(m, "client_secret")
			}); err != nil {
				return fmt.Errorf("failed to update %s: %w", path, err)
			}
			cmd.Printf("Removed credentials from %s\n", path)
			return nil
		},
	}
	parent.AddCommand(logout)

	config := &cobra.Command{
		Use:     "config",
		GroupID: "client",
		Short:   "Prints the stored client config with secrets masked",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := cfg.Path()
			values, err := cfg.Get(path)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}
			cmd.Printf("# %s\n", path)
			for _, key := range clientKeys {
				value, ok := values[key]
				if !ok {
					continue
				}
				if slices.Contains([]string{"token", "client_secret"}, key) {
					value = strings.Repeat("*", len(value))
				}
				cmd.Printf("%s=%s\n", key, value)
			}
			return nil
		},
	}
	parent.AddCommand(config)
}
