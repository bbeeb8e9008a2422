package main

import (
	"github.com/spf13/cobra"
)

var (
	execSQL      string
	execArgs     []string
	execReturnID bool
	execSequence string
)

var execCmd = &cobra.Command{
	Use:   "exec",
	Short: "Run a statement and print the number of affected rows",
	Example: `  xdb exec --sql "UPDATE companies SET sector = :to WHERE sector = :from" --arg from=energy --arg to=utilities
  xdb exec --sql "INSERT INTO companies (sym) VALUES (:sym)" --arg sym=MSFT --return-id --sequence companies_id_seq`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		values, err := parseArgs(execArgs)
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

		var n int64
		if len(values) == 0 {
			n, err = s.exec.Exec(ctx, execSQL)
		} else {
			n, err = s.exec.RowsAffected(ctx, execSQL, values)
		}
		if err != nil {
			return err
		}

		out := map[string]any{"rows_affected": n}
		if execReturnID {
			id, err := s.exec.LastInsertID(ctx, execSequence)
			if err != nil {
				return err
			}
			out["last_insert_id"] = id
		}
		return printJSON(cmd.OutOrStdout(), out)
	},
}

func init() {
	execCmd.Flags().StringVarP(&execSQL, "sql", "s", "", "statement to run")
	execCmd.Flags().StringArrayVarP(&execArgs, "arg", "a", nil, "placeholder value as key=value (repeatable, NULL binds null)")
	execCmd.Flags().BoolVar(&execReturnID, "return-id", false, "print the last insert id")
	execCmd.Flags().StringVar(&execSequence, "sequence", "", "sequence name passed to the last insert id lookup")
	_ = execCmd.MarkFlagRequired("sql")
}
