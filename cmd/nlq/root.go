package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"nlq-resolver/internal/common/logger"
	"nlq-resolver/internal/metadata"
	"nlq-resolver/internal/models"
)

type rootOptions struct {
	metadataPath string
	output       string
	logLevel     string
}

func execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		output, _ := rootCmd.PersistentFlags().GetString("output")
		if output == "json" {
			_ = printJSON(os.Stdout, map[string]interface{}{"error": err.Error()})
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "nlq",
		Short:         "Natural-language query resolver",
		Long:          "Reads natural-language requests, turns them into SQL against a schema snapshot and runs them with ordered fallbacks.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("metadata") {
				if v := os.Getenv("NLQ_METADATA"); v != "" {
					opts.metadataPath = v
				}
			}
			return validateOutputFormat(opts.output)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.metadataPath, "metadata", "m", "", "Schema snapshot file (json or yaml)")
	rootCmd.PersistentFlags().StringVarP(&opts.output, "output", "o", "table", "Output format (table, json)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		newUnderstandCmd(opts),
		newValidateCmd(opts),
		newResolveCmd(opts),
		newMetadataCmd(opts),
		newRegistryCmd(opts),
	)
	return rootCmd
}

func validateOutputFormat(output string) error {
	if output != "table" && output != "json" {
		return fmt.Errorf("unsupported output format %q: use 'table' or 'json'", output)
	}
	return nil
}

func (o *rootOptions) logger() logger.Logger {
	return logger.NewStructured(o.logLevel, "console")
}

// snapshot reads the file named by --metadata. A missing flag is an error
// only for commands that need the schema.
func (o *rootOptions) snapshot(ctx context.Context) (*models.SemanticMetadata, error) {
	if o.metadataPath == "" {
		return nil, fmt.Errorf("--metadata is required (or set NLQ_METADATA)")
	}
	return metadata.NewFileStore(o.metadataPath).Load(ctx)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
