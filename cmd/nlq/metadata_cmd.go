package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"nlq-resolver/internal/common/config"
	"nlq-resolver/internal/common/database"
	"nlq-resolver/internal/metadata"
)

func newMetadataCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metadata",
		Short: "Inspect and publish schema snapshots",
	}
	cmd.AddCommand(
		newMetadataCheckCmd(opts),
		newMetadataDiffCmd(opts),
		newMetadataPublishCmd(opts),
	)
	return cmd
}

func newMetadataCheckCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check FILE",
		Short: "Parse and validate a snapshot file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			md, err := metadata.NewFileStore(args[0]).Load(cmd.Context())
			if err != nil {
				return err
			}
			summary := map[string]int{
				"tables":        len(md.Tables),
				"relationships": len(md.Relationships),
				"indexes":       len(md.Indexes),
			}
			if opts.output == "json" {
				return printJSON(cmd.OutOrStdout(), summary)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "ok: %d tables, %d relationships, %d indexes\n",
				summary["tables"], summary["relationships"], summary["indexes"])
			return err
		},
	}
}

func newMetadataDiffCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "diff OLD NEW",
		Short: "Show how two snapshots differ, including renamed tables",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			oldMD, err := metadata.NewFileStore(args[0]).Load(cmd.Context())
			if err != nil {
				return err
			}
			newMD, err := metadata.NewFileStore(args[1]).Load(cmd.Context())
			if err != nil {
				return err
			}

			cmp := metadata.Compare(oldMD, newMD)
			if opts.output == "json" {
				return printJSON(cmd.OutOrStdout(), cmp)
			}
			if cmp.Unchanged() {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "no changes")
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TABLE\tNOW\tMATCH\tSIMILARITY\t+COLUMNS\t-COLUMNS")
			for _, t := range cmp.Tables {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%v\t%v\n",
					t.Table, t.Counterpart, t.MatchType, t.Similarity, t.AddedColumns, t.RemovedColumns)
			}
			for _, name := range cmp.Removed {
				fmt.Fprintf(tw, "%s\t-\tremoved\t\t\t\n", name)
			}
			for _, name := range cmp.Added {
				fmt.Fprintf(tw, "-\t%s\tadded\t\t\t\n", name)
			}
			return tw.Flush()
		},
	}
}

func newMetadataPublishCmd(opts *rootOptions) *cobra.Command {
	var (
		addr     string
		password string
		db       int
		key      string
	)

	cmd := &cobra.Command{
		Use:   "publish FILE",
		Short: "Validate a snapshot file and publish it to Redis for the workers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			md, err := metadata.NewFileStore(args[0]).Load(cmd.Context())
			if err != nil {
				return err
			}

			client, err := database.NewRedis(config.RedisConfig{Address: addr, Password: password, DB: db})
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.SnapshotStore(key).Publish(cmd.Context(), md); err != nil {
				return err
			}
			if opts.output == "json" {
				return printJSON(cmd.OutOrStdout(), map[string]interface{}{"key": key, "tables": len(md.Tables)})
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "published %d tables to %s\n", len(md.Tables), key)
			return err
		},
	}

	cmd.Flags().StringVar(&addr, "redis-addr", "localhost:6379", "Redis address")
	cmd.Flags().StringVar(&password, "redis-password", "", "Redis password")
	cmd.Flags().IntVar(&db, "redis-db", 0, "Redis database")
	cmd.Flags().StringVar(&key, "key", metadata.DefaultRedisKey, "Key the workers read the snapshot from")
	return cmd
}
