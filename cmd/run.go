// File: cmd/run.go
package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/xkilldash9x/scalpel-agent/api/schemas"
	"github.com/xkilldash9x/scalpel-agent/internal/agent"
	"github.com/xkilldash9x/scalpel-agent/internal/config"
	"github.com/xkilldash9x/scalpel-agent/internal/observability"
)

// isInteractive reports whether prompts should be printed for in.
var isInteractive = func(in io.Reader) bool {
	f, ok := in.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

type runOptions struct {
	objective string
	start     string
	maxSteps  int
	headless  bool
	workDir   string
}

// newRunCmd creates the `run` command with one subcommand per environment.
func newRunCmd(components componentFactory) *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the agent in a browser or a shell",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			_, err := parseNamespace(args[0])
			return err
		},
	}
	runCmd.AddCommand(
		newRunEnvCmd(components, schemas.NamespaceBrowser, "Drive a headless browser toward objectives", "[start-url]"),
		newRunEnvCmd(components, schemas.NamespaceTerminal, "Drive a bash shell toward objectives", "[work-dir]"),
	)
	return runCmd
}

func newRunEnvCmd(components componentFactory, ns schemas.Namespace, short, startArg string) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   string(ns) + " " + startArg,
		Short: short,
		Long: short + `.

Without --objective an interactive loop reads one objective per line until
"exit" or end of input. The environment is reset before every objective.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			if len(args) == 1 {
				opts.start = args[0]
			}
			applyRunFlags(cmd, cfg, opts)
			return runEnvironment(cmd.Context(), cmd, components, cfg, ns, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.objective, "objective", "o", "", "Run a single objective and exit")
	cmd.Flags().IntVar(&opts.maxSteps, "max-steps", 0, "Step budget per objective (overrides config)")
	if ns == schemas.NamespaceBrowser {
		cmd.Flags().BoolVar(&opts.headless, "headless", true, "Run the browser without a window (overrides config)")
	} else {
		cmd.Flags().StringVar(&opts.workDir, "workdir", "", "Default working directory of the shell (overrides config)")
	}
	return cmd
}

func applyRunFlags(cmd *cobra.Command, cfg config.Interface, opts *runOptions) {
	if opts.maxSteps > 0 {
		cfg.SetAgentMaxSteps(opts.maxSteps)
	}
	if f := cmd.Flags().Lookup("headless"); f != nil && f.Changed {
		cfg.SetBrowserHeadless(opts.headless)
	}
	if opts.workDir != "" {
		cfg.SetTerminalWorkDir(opts.workDir)
	}
}

func runEnvironment(ctx context.Context, cmd *cobra.Command, components componentFactory, cfg config.Interface, ns schemas.Namespace, opts *runOptions) error {
	logger := observability.GetLogger()

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

	env, err := components.Environment(ctx, cfg, ns, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := env.Close(); cerr != nil {
			logger.Warn("Failed to close environment", zap.Error(cerr))
		}
	}()

	a, err := newAgent(cfg, logger, client, env, ns, archive, nil)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	runObjective := func(ctx context.Context, objective string) error {
		res, err := a.Run(ctx, objective, opts.start)
		printRunResult(out, res)
		return err
	}

	if opts.objective != "" {
		return runObjective(ctx, opts.objective)
	}
	return runREPL(ctx, cmd.InOrStdin(), out, isInteractive(cmd.InOrStdin()), runObjective)
}

// runREPL reads objectives line by line and runs each one. Run failures are
// reported and the loop continues; cancellation ends it.
func runREPL(ctx context.Context, in io.Reader, out io.Writer, interactive bool, run func(context.Context, string) error) error {
	scanner := bufio.NewScanner(in)
	for {
		if interactive {
			fmt.Fprintln(out, "Please enter your objective (type `exit` to exit): ")
			fmt.Fprint(out, "> ")
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		objective := strings.TrimSpace(scanner.Text())
		if objective == "" {
			continue
		}
		if objective == "exit" {
			return nil
		}

		if err := run(ctx, objective); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			fmt.Fprintf(out, "Run failed: %v\n", err)
		}

		if interactive {
			fmt.Fprint(out, "Press enter to continue...")
			if !scanner.Scan() {
				return scanner.Err()
			}
		}
	}
}

func printRunResult(out io.Writer, res agent.RunResult) {
	if len(res.History) > 0 {
		fmt.Fprintln(out, agent.FormatHistory(res.History))
	}
	if res.Completed {
		fmt.Fprintln(out, "Objective completed!")
		fmt.Fprintln(out, res.Answer)
		return
	}
	if res.Steps > 0 {
		fmt.Fprintf(out, "Objective not completed after %d steps.\n", res.Steps)
	}
}
