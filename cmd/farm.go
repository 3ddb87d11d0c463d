package main

import (
	"github.com/spf13/cobra"

	"mini-hpc-submit/pkg/farm"
)

func farmCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "farm ./path/to/farm.yaml ./path/to/farm-dir",
		Short: "Create a META-Farm directory",
		Long: `Create a META-Farm directory with job_script.sh, resubmit_script.sh, table.dat
and, when a final job is given, final.sh. The directory must not exist.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := farm.Load(args[0])
			if err != nil {
				return err
			}
			dialect, err := a.dialect()
			if err != nil {
				return err
			}
			validator, err := a.cfg.Validator()
			if err != nil {
				return err
			}
			return farm.Make(args[1], spec, dialect, validator)
		},
	}
}
