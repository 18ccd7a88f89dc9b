package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/votestream"
)

func statsCmd() *cobra.Command {
	var (
		stats   votestream.BotStats
		shardID int
	)

	cmd := &cobra.Command{
		Use:   "stats BOT_ID",
		Short: "Show or post a bot's server statistics",
		Long: `Show a bot's server statistics, or post new ones with --servers.

Examples:
  # Show
  votestream stats 264811613708746752

  # Post
  votestream stats 264811613708746752 --servers 1200 --shard-count 2`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.RequireTopggToken(); err != nil {
				return err
			}
			client, err := newClient(nil)
			if err != nil {
				return err
			}

			if !cmd.Flags().Changed("servers") {
				return printResult(cmd.OutOrStdout(), client.Topgg.GetBotStats(cmd.Context(), args[0]))
			}

			if cmd.Flags().Changed("shard-id") {
				stats.ShardID = &shardID
			}
			if _, err := client.Topgg.PostBotStats(cmd.Context(), args[0], stats).Unwrap(); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "posted stats for %s\n", args[0])
			return err
		},
	}

	cmd.Flags().IntVar(&stats.ServerCount, "servers", 0, "server count to post")
	cmd.Flags().IntSliceVar(&stats.Shards, "shards", nil, "per-shard server counts")
	cmd.Flags().IntVar(&shardID, "shard-id", 0, "shard posting these stats")
	cmd.Flags().IntVar(&stats.ShardCount, "shard-count", 0, "total shards")

	return cmd
}
