package main

import (
	"fmt"
	"log"
	"os"

	"github.com/sarchlab/gpubatch/recording"
	"github.com/spf13/cobra"
)

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "List the tables of a submission recording database.",
	Long: "`tables [database path]` lists the tables of a recording " +
		"database along with their row counts.",
	Run: func(_ *cobra.Command, args []string) {
		if len(args) < 1 {
			fmt.Fprintln(os.Stderr, "Error: database path argument is required")
			os.Exit(1)
		}
		path := args[0]

		if _, err := os.Stat(path); err != nil {
			log.Fatalf("cannot open recording database: %v", err)
		}

		reader := recording.NewReader(path)
		defer reader.Close()

		tables, err := reader.ListTables()
		if err != nil {
			log.Fatalf("cannot list tables: %v", err)
		}

		for _, name := range tables {
			count, err := reader.CountRows(name)
			if err != nil {
				log.Fatalf("cannot count rows of %s: %v", name, err)
			}

			fmt.Printf("%s\t%d rows\n", name, count)
		}
	},
}

func init() {
	rootCmd.AddCommand(tablesCmd)
}
