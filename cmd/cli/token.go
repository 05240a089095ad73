package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/keystore/internal/config"
	"github.com/turtacn/keystore/internal/infrastructure/crypto"
)

// jwtSecretEnv is the same variable the service reads auth.jwt_secret from.
const jwtSecretEnv = config.EnvPrefix + "_AUTH_JWT_SECRET"

func newTokenCmd(root *rootOptions) *cobra.Command {
	var (
		subject  string
		ttl      time.Duration
		issuer   string
		audience string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development bearer token",
		Long: `Mint an HS256 bearer token whose subject is the given user id.
The signing secret comes from --config, then $` + jwtSecretEnv + `, then a prompt.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := root.newLogger()
			auth := config.AuthConfig{Issuer: issuer, Audience: audience}

			if root.configFile != "" {
				cfg, err := config.LoadConfig(root.configFile, log)
				if err != nil {
					return err
				}
				auth.JWTSecret = cfg.Auth.JWTSecret
				if !cmd.Flags().Changed("issuer") {
					auth.Issuer = cfg.Auth.Issuer
				}
				if !cmd.Flags().Changed("audience") {
					auth.Audience = cfg.Auth.Audience
				}
			}
			if auth.JWTSecret == "" {
				auth.JWTSecret = os.Getenv(jwtSecretEnv)
			}
			if auth.JWTSecret == "" {
				secret, err := readSecret(cmd, "JWT secret: ")
				if err != nil {
					return err
				}
				auth.JWTSecret = string(secret)
			}

			m, err := crypto.NewJWTManager(auth, log)
			if err != nil {
				return err
			}
			token, err := m.Issue(subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVarP(&subject, "subject", "s", "", "user id the token authenticates")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	cmd.Flags().StringVar(&issuer, "issuer", "", "iss claim")
	cmd.Flags().StringVar(&audience, "audience", "", "aud claim")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
