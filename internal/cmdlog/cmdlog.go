// Package cmdlog wraps CLI subcommands with logging and metrics.
package cmdlog

import (
	"time"

	"storepulse/internal/logging"
	"storepulse/internal/metrics"
)

// Run executes f as the named command. It counts every run and failure in
// storepulse_command_runs_total and storepulse_command_errors_total, and logs
// "<cmd>_ok" or "<cmd>_error" with the elapsed time. f's error is returned as is.
func Run(cmd string, f func() error) error {
	metrics.IncCommandRun(cmd)
	started := time.Now()
	err := f()
	took := time.Since(started).String()
	if err != nil {
		metrics.IncCommandError(cmd)
		logging.Error(cmd+"_error", map[string]any{"error": err.Error(), "took": took})
		return err
	}
	logging.Info(cmd+"_ok", map[string]any{"took": took})
	return nil
}
