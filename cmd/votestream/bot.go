package main

import (
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/votestream"
)

func botCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bot",
		Short: "Query the bot listing",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Root().PersistentPreRunE(cmd, args); err != nil {
				return err
			}
			return cfg.RequireTopggToken()
		},
	}

	cmd.AddCommand(botGetCmd())
	cmd.AddCommand(botSearchCmd())
	cmd.AddCommand(botVotersCmd())
	cmd.AddCommand(botOwnerCmd())

	return cmd
}

func botGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get BOT_ID",
		Short: "Show one bot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(nil)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), client.Topgg.GetBot(cmd.Context(), args[0]))
		},
	}
}

func botSearchCmd() *cobra.Command {
	var q votestream.BotsQuery

	cmd := &cobra.Command{
		Use:   "search [TERM]",
		Short: "Search listed bots",
		Long: `Search listed bots.

Examples:
  votestream bot search luca
  votestream bot search --sort monthlyPoints --limit 10 --fields id,username`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				q.Search = args[0]
			}
			client, err := newClient(nil)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), client.Topgg.GetBots(cmd.Context(), q))
		},
	}

	cmd.Flags().IntVar(&q.Limit, "limit", 0, "max results (server default when 0)")
	cmd.Flags().IntVar(&q.Offset, "offset", 0, "results to skip")
	cmd.Flags().StringVar(&q.Sort, "sort", "", "field to sort by")
	cmd.Flags().StringSliceVar(&q.Fields, "fields", nil, "fields to return")

	return cmd
}

func botVotersCmd() *cobra.Command {
	var page int

	cmd := &cobra.Command{
		Use:   "voters BOT_ID",
		Short: "List recent voters of a bot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(nil)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), client.Topgg.GetVotes(cmd.Context(), args[0], page))
		},
	}

	cmd.Flags().IntVar(&page, "page", 1, "page number")

	return cmd
}

func botOwnerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "user USER_ID",
		Short: "Show a bot-listing user profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(nil)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), client.Topgg.GetUser(cmd.Context(), args[0]))
		},
	}
}
