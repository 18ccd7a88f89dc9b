package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/votestream"
)

func checkCmd() *cobra.Command {
	var topgg bool

	cmd := &cobra.Command{
		Use:   "check ENTITY_ID USER_ID",
		Short: "Report whether a user has voted for an entity",
		Long: `Report whether a user has a recent vote for an entity.

By default the vote service's history is consulted. With --topgg the
bot-listing check endpoint is used instead.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			check := cfg.RequireToken
			if topgg {
				check = cfg.RequireTopggToken
			}
			if err := check(); err != nil {
				return err
			}

			client, err := newClient(nil)
			if err != nil {
				return err
			}

			var res votestream.Result[bool]
			if topgg {
				res = client.Topgg.HasVoted(cmd.Context(), args[0], args[1])
			} else {
				res = client.API.HasVoted(cmd.Context(), args[0], args[1])
			}
			voted, err := res.Unwrap()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), voted)
			return err
		},
	}

	cmd.Flags().BoolVar(&topgg, "topgg", false, "ask the bot-listing API")

	return cmd
}

func weekendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "weekend",
		Short: "Report whether weekend vote multipliers are active",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.RequireTopggToken(); err != nil {
				return err
			}
			client, err := newClient(nil)
			if err != nil {
				return err
			}
			weekend, err := client.Topgg.IsWeekend(cmd.Context()).Unwrap()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), weekend)
			return err
		},
	}
}
