package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	echoapi "github.com/trezcool/hazira/apps/api/echo"
	"github.com/trezcool/hazira/core/identity"
)

func (cli *commandLine) tokenCmd() *cobra.Command {
	var (
		sub   string
		name  string
		roles []string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed JWT for local testing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			requester := identity.Requester{ID: sub, Name: name}
			for _, r := range roles {
				role, ok := identity.ParseRole(r)
				if !ok {
					return errors.Errorf("unknown role %q", r)
				}
				requester.Roles = append(requester.Roles, role)
			}
			if requester.IsAnonymous() || len(requester.Roles) == 0 {
				_ = cmd.Usage()
				return errHelp
			}

			token, err := echoapi.GenerateToken(echoapi.NewClaims(requester, cli.conf), cli.conf)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&sub, "sub", "", "subject (user id) of the token")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "role(s): student, teacher, admin")
	return cmd
}
