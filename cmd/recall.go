// File: cmd/recall.go
package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/scalpel-agent/internal/mcp"
	"github.com/xkilldash9x/scalpel-agent/internal/memory"
	"github.com/xkilldash9x/scalpel-agent/internal/observability"
)

// newRecallCmd creates the `recall` command for querying archived messages.
func newRecallCmd(components componentFactory) *cobra.Command {
	recallCmd := &cobra.Command{
		Use:   "recall",
		Short: "Search the archive of every message the agent produced",
	}

	var page, limit int
	searchCmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find messages containing every query term",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withArchive(cmd, components, func(archive memory.Archive) error {
				msgs, err := archive.TextSearch(cmd.Context(), strings.Join(args, " "), page, limit)
				if err != nil {
					return fmt.Errorf("recall search failed: %w", err)
				}
				printMessages(cmd.OutOrStdout(), msgs)
				return nil
			})
		},
	}
	searchCmd.Flags().IntVar(&page, "page", 0, "Result page, starting at 0")
	searchCmd.Flags().IntVar(&limit, "limit", 10, "Messages per page")

	var from, to string
	rangeCmd := &cobra.Command{
		Use:   "range",
		Short: "List messages stamped within a time range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := mcp.ParseTime(from)
			if err != nil {
				return err
			}
			end, err := mcp.ParseTime(to)
			if err != nil {
				return err
			}
			if end.Before(start) {
				return fmt.Errorf("--to %s is before --from %s", to, from)
			}
			return withArchive(cmd, components, func(archive memory.Archive) error {
				msgs, err := archive.DateSearch(cmd.Context(), start, end)
				if err != nil {
					return fmt.Errorf("recall range query failed: %w", err)
				}
				printMessages(cmd.OutOrStdout(), msgs)
				return nil
			})
		},
	}
	rangeCmd.Flags().StringVar(&from, "from", "", "Start of the range (RFC 3339 or YYYY-MM-DD)")
	rangeCmd.Flags().StringVar(&to, "to", "", "End of the range (RFC 3339 or YYYY-MM-DD)")
	_ = rangeCmd.MarkFlagRequired("from")
	_ = rangeCmd.MarkFlagRequired("to")

	recallCmd.AddCommand(searchCmd, rangeCmd)
	return recallCmd
}

func withArchive(cmd *cobra.Command, components componentFactory, fn func(memory.Archive) error) error {
	cfg, err := getConfigFromContext(cmd.Context())
	if err != nil {
		return err
	}
	archive, closeArchive, err := components.Archive(cmd.Context(), cfg, observability.GetLogger())
	if err != nil {
		return err
	}
	defer closeArchive()
	if archive == nil {
		return fmt.Errorf("recall storage is disabled; set recall.enabled and the recall.postgres settings")
	}
	return fn(archive)
}

func printMessages(out io.Writer, msgs []memory.Message) {
	if len(msgs) == 0 {
		fmt.Fprintln(out, "No messages found.")
		return
	}
	for _, m := range msgs {
		fmt.Fprintln(out, m.String())
	}
}
