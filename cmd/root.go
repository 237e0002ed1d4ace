package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ccxcon",
		Short: "ccxcon keeps a course catalog in sync with edX and tells subscribers about every change",
		Long: `ccxcon keeps a course catalog in sync with edX and tells subscribers about every change.

The service commands (server, worker, sync, instance, webhook, token) read the service
config from --config, ./ccxcon.{json,yaml,toml} or /etc/ccxcon/ and CCXCON_ prefixed
environment variables. The client commands (ccx, login, logout, config) read $HOME/.ccxcon and CCXCON_SERVER,
CCXCON_TOKEN, CCXCON_CLIENT_ID and CCXCON_CLIENT_SECRET.`,
		SilenceUsage: true,
	}
	cmd.AddGroup(
		&cobra.Group{ID: "service", Title: "Service"},
		&cobra.Group{ID: "admin", Title: "Administration"},
		&cobra.Group{ID: "client", Title: "Client"},
	)

	cmd.PersistentFlags().String("config", "", "service config file (default is ./ccxcon.{json,yaml,toml} or /etc/ccxcon/)")
	cmd.PersistentFlags().BoolP("help", "h", false, "help for ccxcon")
	cmd.CompletionOptions.DisableDescriptions = true
	cobra.OnInitialize(initClientConfig)

	return cmd
}

func Execute(command *cobra.Command) {
	if err := command.Execute(); err != nil {
		os.Exit(1)
	}
}

// initClientConfig loads the settings of the api client commands into the global viper instance.
func initClientConfig() {
	viper.SetDefault("server", "http://localhost:8080")

	if home, err := os.UserHomeDir(); err == nil {
		viper.SetConfigName(".ccxcon")
		viper.SetConfigType("env")
		viper.AddConfigPath(home)
	}
	viper.SetEnvPrefix("ccxcon")
	viper.AutomaticEnv()

	_ = viper.ReadInConfig()
}

func configPath(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	return path
}
