package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/koustreak/xdb/internal/bind"
	"github.com/koustreak/xdb/internal/query"
	"github.com/spf13/cobra"
)

var (
	queryMode string
	querySQL  string
	queryArgs []string
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Run a statement and print the result as JSON",
	Example: `  xdb query --mode all --sql "SELECT id, sym FROM companies"
  xdb query --mode value --sql "SELECT id FROM companies WHERE sym = :sym" --arg sym=AAPL`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		values, err := parseArgs(queryArgs)
		if err != nil {
			return err
		}

		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		ctx, cancel := s.callContext(cmd.Context())
		defer cancel()

		out, err := runFetch(ctx, s.exec, queryMode, querySQL, values)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), out)
	},
}

func init() {
	queryCmd.Flags().StringVarP(&queryMode, "mode", "m", "all", "fetch mode: all, assoc, one, value, column, group, pairs, object")
	queryCmd.Flags().StringVarP(&querySQL, "sql", "s", "", "statement to run")
	queryCmd.Flags().StringArrayVarP(&queryArgs, "arg", "a", nil, "placeholder value as key=value (repeatable, NULL binds null)")
	_ = queryCmd.MarkFlagRequired("sql")
}

// runFetch runs the fetch mode and returns its JSON-ready outcome.
func runFetch(ctx context.Context, e *query.Executor, mode, statement string, values bind.Values) (query.Outcome, error) {
	m := query.Mode(mode)
	if !m.Valid() {
		return query.Outcome{}, usageError("unknown mode %q", mode)
	}
	return e.FetchMode(ctx, m, statement, values)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
