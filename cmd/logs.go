// File: cmd/logs.go
package cmd

import (
	"fmt"
	"io"

	"github.com/hpcloud/tail"
	"github.com/spf13/cobra"
)

// newLogsCmd creates the `logs` command, which prints the rotated log file
// and optionally keeps following it.
func newLogsCmd() *cobra.Command {
	var (
		follow  bool
		fromEnd bool
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print or follow the agent log file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			path := cfg.Logger().LogFile
			if path == "" {
				return fmt.Errorf("no log file configured (logger.log_file)")
			}
			return tailLog(cmd, path, follow, fromEnd)
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing lines as they are written")
	cmd.Flags().BoolVar(&fromEnd, "from-end", false, "Skip existing content and print only new lines (implies --follow)")
	return cmd
}

func tailLog(cmd *cobra.Command, path string, follow, fromEnd bool) error {
	whence := io.SeekStart
	if fromEnd {
		whence = io.SeekEnd
		follow = true
	}
	t, err := tail.TailFile(path, tail.Config{
		Follow:    follow,
		ReOpen:    follow,
		MustExist: true,
		Location:  &tail.SeekInfo{Offset: 0, Whence: whence},
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to tail log file: %w", err)
	}
	defer t.Cleanup()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	for {
		select {
		case <-ctx.Done():
			_ = t.Stop()
			return nil
		case line, ok := <-t.Lines:
			if !ok {
				return t.Wait()
			}
			if line.Err != nil {
				return fmt.Errorf("failed to read log file: %w", line.Err)
			}
			fmt.Fprintln(out, line.Text)
		}
	}
}
