package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"nlq-resolver/internal/common/database"
	"nlq-resolver/internal/models"
	"nlq-resolver/internal/resolver"
	"nlq-resolver/internal/resolver/executor"
)

// openDB is replaced in tests.
var openDB = func(dsn string) (*sql.DB, error) {
	return sql.Open("postgres", dsn)
}

type staticSnapshot struct{ md *models.SemanticMetadata }

func (s staticSnapshot) Load(context.Context) (*models.SemanticMetadata, error) { return s.md, nil }

func newResolveCmd(opts *rootOptions) *cobra.Command {
	var (
		dsn           string
		maxRows       int
		timeout       time.Duration
		strategies    []string
		minConfidence float64
	)

	cmd := &cobra.Command{
		Use:   "resolve QUERY...",
		Short: "Resolve a request to SQL and run it against PostgreSQL",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("dsn") {
				dsn = os.Getenv("NLQ_DSN")
			}
			if dsn == "" {
				return fmt.Errorf("--dsn is required (or set NLQ_DSN)")
			}

			md, err := opts.snapshot(cmd.Context())
			if err != nil {
				return err
			}

			db, err := openDB(dsn)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			log := opts.logger()
			engine, err := executor.NewEngine(database.NewSQLExecutor(db, database.WithRowCap(maxRows)), executor.Config{
				Timeout:    timeout,
				MaxRows:    maxRows,
				Strategies: strategies,
			}, log)
			if err != nil {
				return err
			}
			res, err := resolver.New(staticSnapshot{md: md}, engine, resolver.Config{
				MinConfidence:       minConfidence,
				MaxAlternativePlans: 2,
			}, log)
			if err != nil {
				return err
			}

			resp, err := res.Resolve(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}

			if opts.output == "json" {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			return printResolution(cmd, resp)
		},
	}

	cmd.Flags().StringVar(&dsn, "dsn", "", "PostgreSQL connection string")
	cmd.Flags().IntVar(&maxRows, "max-rows", 1000, "Row cap added to every statement")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Budget for each statement")
	cmd.Flags().StringSliceVar(&strategies, "strategies", nil, "Fallback strategies in order (default: all)")
	cmd.Flags().Float64Var(&minConfidence, "min-confidence", 0.3, "Warn below this understanding confidence")
	return cmd
}

func printResolution(cmd *cobra.Command, resp *resolver.Response) error {
	w := cmd.OutOrStdout()
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "REQUEST\t%s\n", resp.RequestID)
	fmt.Fprintf(tw, "SQL\t%s\n", resp.SQL)
	fmt.Fprintf(tw, "OUTCOME\t%s\n", resp.Outcome())
	if resp.Result.SQLExecuted != resp.SQL {
		fmt.Fprintf(tw, "EXECUTED\t%s\n", resp.Result.SQLExecuted)
	}
	for _, a := range resp.Attempts {
		status := "ok"
		if !a.Success {
			status = a.ErrorMessage
		}
		fmt.Fprintf(tw, "ATTEMPT %d\t%s: %s\n", a.AttemptNumber, a.Strategy, status)
	}
	for _, warn := range resp.Warnings {
		fmt.Fprintf(tw, "WARNING\t%s: %s\n", warn.Code, warn.Message)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if !resp.Result.Success {
		return nil
	}

	fmt.Fprintln(w)
	rows := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(rows, strings.ToUpper(strings.Join(resp.Result.ColumnNames, "\t")))
	for _, row := range resp.Result.Data {
		cells := make([]string, len(row.Values))
		for i, v := range row.Values {
			cells[i] = fmt.Sprint(v)
		}
		fmt.Fprintln(rows, strings.Join(cells, "\t"))
	}
	fmt.Fprintf(rows, "(%d rows, %d ms)\n", resp.Result.RowCount, resp.Result.ExecutionTimeMs)
	return rows.Flush()
}
