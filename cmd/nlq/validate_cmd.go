package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"nlq-resolver/internal/resolver/optimizer"
)

var errInvalidStatement = errors.New("statement failed validation")

type validateOutput struct {
	Validation   optimizer.ValidationReport   `json:"validation"`
	Optimization optimizer.OptimizationResult `json:"optimization"`
}

func newValidateCmd(opts *rootOptions) *cobra.Command {
	var maxRows int

	cmd := &cobra.Command{
		Use:   "validate SQL",
		Short: "Check a SELECT against the schema snapshot and suggest optimizations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			md, err := opts.snapshot(cmd.Context())
			if err != nil {
				return err
			}

			out := validateOutput{
				Validation:   optimizer.ValidateSQL(args[0], md),
				Optimization: optimizer.OptimizeQuery(args[0], md, maxRows),
			}

			if opts.output == "json" {
				if err := printJSON(cmd.OutOrStdout(), out); err != nil {
					return err
				}
			} else if err := printValidation(cmd, out); err != nil {
				return err
			}

			if !out.Validation.Valid {
				return errInvalidStatement
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&maxRows, "max-rows", 1000, "LIMIT added when the statement has none")
	return cmd
}

func printValidation(cmd *cobra.Command, out validateOutput) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "VALID\t%t\n", out.Validation.Valid)
	fmt.Fprintf(tw, "TABLES\t%s\n", strings.Join(out.Validation.Tables, ", "))
	for _, d := range append(append([]optimizer.Diagnostic(nil), out.Validation.Errors...), out.Validation.Warnings...) {
		fmt.Fprintf(tw, "%s\t%s: %s\n", strings.ToUpper(string(d.Severity)), d.RuleID, d.Message)
	}
	fmt.Fprintf(tw, "OPTIMIZED\t%s\n", out.Optimization.OptimizedSQL)
	for _, s := range out.Optimization.Suggestions {
		fmt.Fprintf(tw, "SUGGESTION\t%s\n", s)
	}
	return tw.Flush()
}
