package main

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"mini-hpc-submit/pkg/job"
	"mini-hpc-submit/pkg/script"
)

func validateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate ./path/to/job.yaml...",
		Short: "Validate job descriptors",
		Long:  `Check job descriptors without submitting them. Every file is checked; each reports its first problem.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			validator, err := a.cfg.Validator()
			if err != nil {
				return err
			}

			var result *multierror.Error
			for _, path := range args {
				d, err := job.Load(path)
				if err == nil {
					err = validator.Validate(d)
				}
				if err != nil {
					result = multierror.Append(result, errors.WithMessage(err, path))
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", path)
			}
			return result.ErrorOrNil()
		},
	}
}

func renderCmd(a *app) *cobra.Command {
	var withScript bool

	cmd := &cobra.Command{
		Use:   "render ./path/to/job.yaml",
		Short: "Print the scheduler directives of a job",
		Long: `Print the directives a job descriptor renders to, one key=value per line.

With --script, print the whole batch script for the configured platform.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			validator, err := a.cfg.Validator()
			if err != nil {
				return err
			}
			d, err := job.Load(args[0])
			if err != nil {
				return err
			}
			if err := validator.Validate(d); err != nil {
				return errors.WithMessage(err, args[0])
			}

			directives := job.Render(d)
			if !withScript {
				for _, directive := range directives {
					fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n", directive.Key, directive.Value)
				}
				return nil
			}

			dialect, err := a.dialect()
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), script.Build(dialect, directives, d.Setup, script.Body(dialect, d)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&withScript, "script", false, "Print the full batch script")
	return cmd
}
