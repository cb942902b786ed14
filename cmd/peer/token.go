package main

import (
	"fmt"
	"reading-room/auth"
	"reading-room/domain"
	"time"

	"github.com/spf13/cobra"
)

var (
	flagUser        string
	flagDisplayName string
	flagRole        string
	flagTTL         time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a development token",
	Long: `Mint a token signed with JWT_SECRET. Real tokens are issued by the main application.

Examples:
  peer token --user alice
  peer token --user mod --role MODERATOR --ttl 1h`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig()
		if err != nil {
			return err
		}
		token, err := mintToken(cfg)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

func init() {
	for _, cmd := range []*cobra.Command{tokenCmd, joinCmd} {
		cmd.Flags().StringVar(&flagUser, "user", "", "user id carried by the token")
		cmd.Flags().StringVar(&flagDisplayName, "name", "", "display name, defaults to the user id")
		cmd.Flags().StringVar(&flagRole, "role", string(domain.RoleListener), "ADMIN, MODERATOR or LISTENER")
		cmd.Flags().DurationVar(&flagTTL, "ttl", 24*time.Hour, "token lifetime")
	}
}

func mintToken(cfg Config) (string, error) {
	if flagUser == "" {
		return "", fmt.Errorf("--user is required to mint a token")
	}
	if cfg.JWTSecret == "" {
		return "", fmt.Errorf("JWT_SECRET must be set to mint a token")
	}
	role, err := domain.ParseRole(flagRole)
	if err != nil {
		return "", fmt.Errorf("invalid --role %q: %w", flagRole, err)
	}
	return auth.NewTokenValidator(cfg.JWTSecret, cfg.JWTIssuer).GenerateToken(flagUser, flagDisplayName, role, flagTTL)
}
