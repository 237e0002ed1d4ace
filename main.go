package main

import (
	"github.com/ccxcon/ccxcon/cmd"
	"github.com/ccxcon/ccxcon/internal/ver"
)

func main() {
	version := ver.Load()

	rootCmd := cmd.NewRootCmd()
	cmd.NewServerCmd(rootCmd, version)
	cmd.NewWorkerCmd(rootCmd, version)
	cmd.NewSyncCmd(rootCmd, version)
	cmd.NewInstanceCmd(rootCmd, version)
	cmd.NewWebhookCmd(rootCmd, version)
	cmd.NewTokenCmd(rootCmd, version)
	cmd.NewCCXCmd(rootCmd)
	cmd.NewLoginCmd(rootCmd)
	cmd.NewVersionCmd(rootCmd, version)
	cmd.NewCompletionCmd(rootCmd)

	cmd.Execute(rootCmd)
}
