package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/ccxcon/ccxcon/internal/ver"
	"github.com/ccxcon/ccxcon/server"
)

func NewTokenCmd(parent *cobra.Command, version ver.Version) {
	cmd := &cobra.Command{
		Use:     "token <client_id>",
		GroupID: "admin",
		Short:   "Issues a bearer token for an api client",
		Long: `Issues a bearer token for an api client signed with auth.jwt_secret. For example:

ccxcon token my-portal --ttl 720h

Clients listed under auth.clients can fetch tokens themselves from /o/token.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := server.LoadConfig(configPath(cmd))
			if err != nil {
				return err
			}
			ttl, _ := cmd.Flags().GetDuration("ttl")
			if ttl <= 0 {
				ttl = cfg.Auth.TokenTTL
			}

			signer, err := server.NewSigner(cfg.Auth.JWTSecret)
			if err != nil {
				return err
			}
			token, err := server.IssueToken(signer, args[0], ttl, time.Now())
			if err != nil {
				return err
			}
			cmd.Println(token)
			return nil
		},
	}

	parent.AddCommand(cmd)
	cmd.Flags().Duration("ttl", 0, "token lifetime (default auth.token_ttl)")
}
