// Command xdb runs statements through the xdb fetch pipeline from the shell
// or over HTTP.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "xdb",
	Short: "Prepared-statement convenience layer over PostgreSQL and MySQL",
	Long: `xdb binds values with inferred wire types, executes one statement at a
time, and reshapes the result through a fetch mode (all, assoc, one, value,
column, group, pairs, object).

The connection is read from a YAML config file; XDB_DSN and XDB_DRIVER
override the database section.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the YAML config file")

	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(tablesCmd)
	rootCmd.AddCommand(serveCmd)
}
