package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/marshallshelly/slate-orm/cmd/slate/output"
	"github.com/marshallshelly/slate-orm/pkg/runtime"
)

type columnInfo struct {
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	Nullable bool    `json:"nullable"`
	Default  *string `json:"default,omitempty"`
}

var describeCmd = &cobra.Command{
	Use:   "describe <table>",
	Short: "Show column definitions for a table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDescribe(args[0])
	},
}

func init() {
	rootCmd.AddCommand(describeCmd)
}

func runDescribe(table string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	exec, err := runtime.Connect(ctx, cfg, runtime.WithLogger(logger()))
	if err != nil {
		return err
	}
	defer exec.Close()

	rows, err := exec.Pool().Query(ctx, `
		SELECT column_name, data_type, is_nullable = 'YES', column_default
		FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = $1
		ORDER BY ordinal_position`, table)
	if err != nil {
		return err
	}
	defer rows.Close()

	var cols []columnInfo
	for rows.Next() {
		var col columnInfo
		if err := rows.Scan(&col.Name, &col.Type, &col.Nullable, &col.Default); err != nil {
			return err
		}
		cols = append(cols, col)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if len(cols) == 0 {
		output.Error("table %s not found", table)
		return fmt.Errorf("table %s not found", table)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(cols)
	}

	output.Section("Table: " + table)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTYPE\tNULLABLE\tDEFAULT")
	for _, col := range cols {
		nullable := "NO"
		if col.Nullable {
			nullable = "YES"
		}
		def := ""
		if col.Default != nil {
			def = *col.Default
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", col.Name, col.Type, nullable, def)
	}
	return w.Flush()
}
