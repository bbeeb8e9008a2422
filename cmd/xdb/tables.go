package main

import (
	"github.com/koustreak/xdb/internal/schema"
	"github.com/spf13/cobra"
)

var tablesSchema string

var tablesCmd = &cobra.Command{
	Use:   "tables [table]",
	Short: "List tables, or describe one table",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		ctx, cancel := s.callContext(cmd.Context())
		defer cancel()

		in := schema.NewInspector(s.exec)
		if len(args) == 1 {
			info, err := in.InspectTable(ctx, tablesSchema, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), info)
		}

		tables, err := in.ListTables(ctx, tablesSchema)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), tables)
	},
}

func init() {
	tablesCmd.Flags().StringVar(&tablesSchema, "schema", "public", "schema (PostgreSQL) or database (MySQL) to inspect")
}
