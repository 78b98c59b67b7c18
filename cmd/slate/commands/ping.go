package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/marshallshelly/slate-orm/cmd/slate/output"
	"github.com/marshallshelly/slate-orm/pkg/runtime"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check database connectivity",
	Long: `Open a connection with the configured settings and ping the server.

Examples:
  slate ping --db postgres://localhost/app
  SLATE_DB_URL=postgres://localhost/app slate ping`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPing()
	},
}

func init() {
	rootCmd.AddCommand(pingCmd)
}

func runPing() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	start := time.Now()
	exec, err := runtime.Connect(ctx, cfg, runtime.WithLogger(logger()))
	if err != nil {
		output.Error("connection failed: %v", err)
		return err
	}
	defer exec.Close()

	output.Success("connected in %s", time.Since(start).Round(time.Millisecond))
	return nil
}
