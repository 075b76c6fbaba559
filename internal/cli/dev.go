package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spec-kit/coopdesk/internal/auth"
	"github.com/spec-kit/coopdesk/internal/config"
	"github.com/spec-kit/coopdesk/internal/domain"
)

// TokenCmd mints a bearer token for a principal, signed with AUTH_JWT_SECRET.
func TokenCmd() *cobra.Command {
	var p domain.Principal
	var role string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development JWT",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			p.Role = domain.Role(role)
			if !p.Role.Valid() {
				return fmt.Errorf("unknown role %q", role)
			}
			if p.ID == "" {
				p.ID = p.Email
			}
			tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
			token, expires, err := tokens.GenerateToken(p)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expires.Format("2006-01-02 15:04:05 MST"))
			return nil
		},
	}
	cmd.Flags().StringVar(&p.ID, "id", "", "principal id (defaults to the email)")
	cmd.Flags().StringVar(&p.Email, "email", "", "principal email")
	cmd.Flags().StringVar(&p.Name, "name", "", "display name")
	cmd.Flags().StringVar(&p.OrganizationID, "org", "", "organization id")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleOperator), "operator, admin, federation or confederation")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

// HashSecretCmd prints the bcrypt hash for ESCALATION_WEBHOOK_SECRET_HASH.
func HashSecretCmd() *cobra.Command {
	var cost int
	cmd := &cobra.Command{
		Use:   "hash-secret [secret]",
		Short: "Hash the sweep webhook secret (reads stdin when no argument is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var secret string
			if len(args) == 1 {
				secret = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return errors.New("secret required")
				}
				secret = line
			}
			secret = strings.TrimSpace(secret)
			if secret == "" {
				return errors.New("secret required")
			}
			hashed, err := auth.HashSecret(secret, cost)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hashed)
			return nil
		},
	}
	cmd.Flags().IntVar(&cost, "cost", 12, "bcrypt cost")
	return cmd
}
