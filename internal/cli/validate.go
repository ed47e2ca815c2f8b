package cli

import (
	"github.com/spf13/cobra"

	"github.com/Peter-Willmott/asana-updater/internal/config"
)

// ValidationResult holds config validation output.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

func (r ValidationResult) String() string {
	if r.Valid {
		return "config valid"
	}
	return "config invalid"
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <config-dir>",
		Short: "Check a config directory against the schema",
		Long: `Validate a CUE config package against the embedded schema without
touching any board or source: GID shapes, required sections and fields,
policy bounds.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, configDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if _, err := config.Load(configDir); err != nil {
		result := ValidationResult{Valid: false, Errors: []string{err.Error()}}
		if opts.Format == "json" {
			if ferr := formatter.Success(result); ferr != nil {
				return ferr
			}
		} else {
			if ferr := formatter.Error("config invalid", err.Error()); ferr != nil {
				return ferr
			}
		}
		return NewExitError(ExitFailure, "config invalid")
	}

	return formatter.Success(ValidationResult{Valid: true})
}
