package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/votestream"
)

func userCmd() *cobra.Command {
	var (
		showVotes bool
		q         votestream.VotesQuery
	)

	cmd := &cobra.Command{
		Use:   "user USER_ID",
		Short: "Show a vote-service user or their votes",
		Long: `Show a vote-service user, including the reminder setting.

Examples:
  votestream user 205680187394752512
  votestream user 205680187394752512 --votes --limit 20`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.RequireToken(); err != nil {
				return err
			}
			client, err := newClient(nil)
			if err != nil {
				return err
			}
			if showVotes {
				return printResult(cmd.OutOrStdout(), client.API.GetUserVotes(cmd.Context(), args[0], q))
			}
			return printResult(cmd.OutOrStdout(), client.API.GetUser(cmd.Context(), args[0]))
		},
	}

	cmd.Flags().BoolVar(&showVotes, "votes", false, "list the user's votes instead")
	cmd.Flags().IntVar(&q.Limit, "limit", 0, "max votes (server default when 0)")
	cmd.Flags().Int64Var(&q.Before, "before", 0, "only votes created before this marker")

	return cmd
}

func remindersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reminders USER_ID on|off",
		Short: "Turn vote reminders on or off for a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.RequireToken(); err != nil {
				return err
			}
			enabled, err := parseSwitch(args[1])
			if err != nil {
				return err
			}
			client, err := newClient(nil)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), client.API.SetUserReminders(cmd.Context(), args[0], &enabled))
		},
	}
}

// parseSwitch accepts on/off as well as anything strconv.ParseBool does.
func parseSwitch(s string) (bool, error) {
	switch s {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("expected on or off, got %q", s)
	}
	return b, nil
}
