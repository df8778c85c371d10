package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"nlq-resolver/internal/models"
	"nlq-resolver/internal/resolver/extractor"
)

func newUnderstandCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "understand QUERY...",
		Short: "Show how a request is read, without planning or executing it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.TrimSpace(strings.Join(args, " "))
			if query == "" {
				return fmt.Errorf("query must not be empty")
			}

			var md *models.SemanticMetadata
			if opts.metadataPath != "" {
				var err error
				if md, err = opts.snapshot(cmd.Context()); err != nil {
					return err
				}
			}

			qc := extractor.New(nil, md, opts.logger()).Extract(query)
			if opts.output == "json" {
				return printJSON(cmd.OutOrStdout(), qc)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "INTENT\t%s\n", qc.BusinessIntent)
			fmt.Fprintf(tw, "CONFIDENCE\t%.2f\n", qc.ConfidenceScore)
			fmt.Fprintf(tw, "ENTITIES\t%s\n", strings.Join(qc.EntitiesMentioned, ", "))
			fmt.Fprintf(tw, "ATTRIBUTES\t%s\n", strings.Join(qc.AttributesMentioned, ", "))
			for _, f := range qc.Filters {
				fmt.Fprintf(tw, "FILTER\t%s %s %s (%s)\n", f.Field, f.Operator, f.Value, f.Type)
			}
			for _, a := range qc.Aggregations {
				fmt.Fprintf(tw, "AGGREGATION\t%s\n", a)
			}
			for _, t := range qc.TemporalReferences {
				fmt.Fprintf(tw, "TEMPORAL\t%s\n", t)
			}
			return tw.Flush()
		},
	}
}
