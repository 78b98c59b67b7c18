package commands

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/marshallshelly/slate-orm/cmd/slate/output"
	"github.com/marshallshelly/slate-orm/pkg/runtime"
)

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "List tables in the connected database",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTables()
	},
}

func init() {
	rootCmd.AddCommand(tablesCmd)
}

func runTables() error {
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
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public' AND table_type = 'BASE TABLE'
		ORDER BY table_name`)
	if err != nil {
		return err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(names)
	}

	if len(names) == 0 {
		output.Warning("no tables found")
		return nil
	}
	output.Section("Tables")
	for _, name := range names {
		output.Muted("  %s", name)
	}
	return nil
}
