package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Peter-Willmott/asana-updater/internal/jobs"
)

// SyncResult summarizes one job pass for command output.
type SyncResult struct {
	Job      string `json:"job"`
	Created  int    `json:"created"`
	Updated  int    `json:"updated"`
	Resolved int    `json:"resolved"`
	Failures int    `json:"failures"`
	Fatal    string `json:"fatal,omitempty"`
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync <config-dir> [job...]",
		Short: "Run sync passes against the live boards",
		Long: `Run reconciliation passes against the live Asana boards.

Without job arguments every job runs in its scheduled order. A job that
fails fatally (source fetch, board listing) is reported and the remaining
jobs still run; per-item mutation failures never abort a pass.

Example:
  asana-updater sync ./config
  asana-updater sync ./config survey-issues bitbucket-prs`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(rootOpts, args[0], args[1:], cmd)
		},
	}
	return cmd
}

func runSync(opts *RootOptions, configDir string, jobNames []string, cmd *cobra.Command) error {
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

	selected, err := selectJobs(deps, jobNames)
	if err != nil {
		return WrapExitError(ExitCommandError, "select jobs", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results := make([]SyncResult, 0, len(selected))
	failed := false
	for _, job := range selected {
		formatter.VerboseLog("running job %s", job.Name())
		summary, err := job.Run(ctx)
		if err != nil {
			slog.Error("job failed", "job", job.Name(), "error", err)
			results = append(results, SyncResult{Job: job.Name(), Fatal: err.Error()})
			failed = true
			continue
		}
		created, updated, resolved, failures := summary.Totals()
		results = append(results, SyncResult{
			Job:      job.Name(),
			Created:  created,
			Updated:  updated,
			Resolved: resolved,
			Failures: failures,
		})
		if summary.Failed() {
			failed = true
		}
	}

	if opts.Format == "json" {
		if err := formatter.Success(results); err != nil {
			return err
		}
	} else {
		fmt.Fprint(formatter.Writer, renderSyncResults(results))
	}

	if failed {
		return NewExitError(ExitFailure, "one or more passes failed")
	}
	return nil
}

// selectJobs resolves job names to jobs, defaulting to all of them.
func selectJobs(deps *jobs.Deps, names []string) ([]jobs.Job, error) {
	if len(names) == 0 {
		return jobs.All(deps), nil
	}
	selected := make([]jobs.Job, 0, len(names))
	for _, name := range names {
		job, err := jobs.ByName(deps, name)
		if err != nil {
			return nil, err
		}
		selected = append(selected, job)
	}
	return selected, nil
}

func renderSyncResults(results []SyncResult) string {
	var b strings.Builder
	for _, r := range results {
		if r.Fatal != "" {
			fmt.Fprintf(&b, "%s: FAILED: %s\n", r.Job, r.Fatal)
			continue
		}
		fmt.Fprintf(&b, "%s: created %d, updated %d, resolved %d, failures %d\n",
			r.Job, r.Created, r.Updated, r.Resolved, r.Failures)
	}
	return b.String()
}
