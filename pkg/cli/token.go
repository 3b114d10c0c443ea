package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sipeed/picocrud/pkg/auth"
	"github.com/sipeed/picocrud/pkg/domain"
)

// NewTokenCommand issues a JWT signed with gateway.jwt_secret.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		user  domain.User
		roles []string
		ttl   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the API and gRPC services",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			user.Roles = roles
			v := auth.NewVerifier("", rootOpts.Config.Gateway.JWTSecret)
			token, err := v.Issue(user, ttl)
			if err != nil {
				return WrapExitError(ExitCommandError, "issue token", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&user.ID, "user", "", "user id (token subject)")
	cmd.Flags().StringVar(&user.Name, "name", "", "display name")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "role (repeatable)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}
