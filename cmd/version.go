package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/ccxcon/ccxcon/internal/ver"
)

func NewVersionCmd(parent *cobra.Command, version ver.Version) {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Prints the version of ccxcon",
		Long: `Prints the version of ccxcon. For example:

ccxcon version

Go Version: go1.22.0
Version: v1.0.0 (b1fd421)
Build Time: Mon Jan  1 00:00:00 2024
OS/Arch: linux/amd64`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(version)
			}
			cmd.Print(version.Format())
			return nil
		},
	}

	parent.AddCommand(cmd)
	cmd.Flags().Bool("json", false, "print the version as json")
}
