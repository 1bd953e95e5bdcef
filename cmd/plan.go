// File: cmd/plan.go
package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/scalpel-agent/api/schemas"
	"github.com/xkilldash9x/scalpel-agent/internal/agent"
	"github.com/xkilldash9x/scalpel-agent/internal/observability"
	"github.com/xkilldash9x/scalpel-agent/internal/orchestrator"
)

var agentDescriptions = map[schemas.Namespace]string{
	schemas.NamespaceBrowser:  "Browses the web: searches, opens pages, follows links, reads and fills in forms.",
	schemas.NamespaceTerminal: "Runs shell commands in a bash session: inspects and edits files, runs programs.",
}

// newPlanCmd creates the `plan` command, which splits an objective into
// tasks and hands each one to the browser or terminal agent.
func newPlanCmd(components componentFactory) *cobra.Command {
	var (
		agentNames []string
		maxRounds  int
	)
	cmd := &cobra.Command{
		Use:   "plan <objective>",
		Short: "Plan an objective and delegate its tasks to the browser and terminal agents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			logger := observability.GetLogger()
			objective := strings.Join(args, " ")

			client, err := components.LLMClient(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer client.Close()

			archive, closeArchive, err := components.Archive(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer closeArchive()

			var specs []orchestrator.AgentSpec
			for _, name := range agentNames {
				ns, err := parseNamespace(name)
				if err != nil {
					return err
				}
				specs = append(specs, orchestrator.AgentSpec{
					Name:        string(ns),
					Description: agentDescriptions[ns],
					Run: func(ctx context.Context, objective string) (agent.RunResult, error) {
						return runOnce(ctx, components, cfg, logger, client, ns, archive, objective, "", nil)
					},
				})
			}

			if maxRounds <= 0 {
				maxRounds = cfg.Orchestrator().MaxRounds
			}
			out := cmd.OutOrStdout()
			orch, err := orchestrator.New(logger, client, orchestrator.Options{
				MaxRounds: maxRounds,
				OnPlan: func(round int, plan string) {
					fmt.Fprintf(out, "Plan after round %d:\n%s\n", round, plan)
				},
			}, specs...)
			if err != nil {
				return err
			}

			report, err := orch.Run(ctx, objective)
			if err != nil {
				return fmt.Errorf("orchestration failed: %w", err)
			}
			fmt.Fprint(out, report.Plan.String())
			if report.Completed {
				fmt.Fprintf(out, "Objective finished after %d rounds.\n", report.Rounds)
			} else {
				fmt.Fprintf(out, "Stopped after %d rounds with tasks left open.\n", report.Rounds)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&agentNames, "agents", []string{"browser", "terminal"}, "Agents the planner may assign tasks to")
	cmd.Flags().IntVar(&maxRounds, "max-rounds", 0, "Planning rounds (overrides config)")
	return cmd
}
