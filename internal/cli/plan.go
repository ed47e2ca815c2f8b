package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Peter-Willmott/asana-updater/internal/jobs"
	"github.com/Peter-Willmott/asana-updater/internal/sandbox"
	"github.com/Peter-Willmott/asana-updater/internal/tracker"
)

// PlanOptions holds flags for the plan command.
type PlanOptions struct {
	*RootOptions
	Database string
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "plan <config-dir> <job>",
		Short: "Preview a pass without mutating the boards",
		Long: `Compute and print the mutations one job pass would issue, without
issuing them. Board state is read live (or from a sandbox board with
--db); sources are always fetched live.

Example:
  asana-updater plan ./config mapping-uploads
  asana-updater plan ./config thermal-uploads --db ./board.db --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "read board state from a sandbox SQLite board")

	return cmd
}

func runPlan(opts *PlanOptions, configDir, jobName string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cfg, err := loadConfig(configDir)
	if err != nil {
		return err
	}
	deps, err := buildDeps(cfg)
	if err != nil {
		return err
	}

	recorder := &MutationRecorder{}

	if opts.Database != "" {
		board, err := sandbox.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "open sandbox board", err)
		}
		defer board.Close()
		deps.Gateway = recorder.Wrap(board)
		deps.GatewayFor = func(string) tracker.Gateway { return deps.Gateway }
	} else {
		deps.Gateway = recorder.Wrap(deps.Gateway)
		inner := deps.GatewayFor
		deps.GatewayFor = func(apiKey string) tracker.Gateway {
			return recorder.Wrap(inner(apiKey))
		}
	}

	job, err := jobs.ByName(deps, jobName)
	if err != nil {
		return WrapExitError(ExitCommandError, "select job", err)
	}

	if _, err := job.Run(context.Background()); err != nil {
		return WrapExitError(ExitFailure, fmt.Sprintf("plan %s", jobName), err)
	}

	recorded := recorder.Recorded()
	if opts.Format == "json" {
		return formatter.Success(recorded)
	}
	fmt.Fprint(formatter.Writer, renderPlan(recorded))
	return nil
}

func renderPlan(rec *RecordedMutations) string {
	if rec.Empty() {
		return "no changes\n"
	}
	var b strings.Builder
	for _, req := range rec.Create {
		fmt.Fprintf(&b, "create  %s\n", req.Name)
	}
	for _, u := range rec.Update {
		fmt.Fprintf(&b, "update  %s\n", u.GID)
	}
	for _, gid := range rec.Resolve {
		fmt.Fprintf(&b, "resolve %s\n", gid)
	}
	return b.String()
}
