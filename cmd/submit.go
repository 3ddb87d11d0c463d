package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"mini-hpc-submit/db"
	"mini-hpc-submit/pkg/boundary"
	"mini-hpc-submit/pkg/job"
	"mini-hpc-submit/pkg/scheduler"
)

func submitCmd(a *app) *cobra.Command {
	var (
		dryRun   bool
		parallel int
	)

	cmd := &cobra.Command{
		Use:   "submit ./path/to/job.yaml...",
		Short: "Submit jobs",
		Long: `Submit job descriptors to the configured platform.

Each descriptor is submitted exactly once; rejected submissions are not retried.

	Example job.yaml:

	wallClockLimit: 12h
	nodeCount: 1
	tasksPerNode: 1
	cpusPerTask: 1
	memoryPerNode: 4gb
	jobName: bgt_2024-11-08-linear7
	billingAccount: st-kevinlb-1
	dispatchTarget: task.run
`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if parallel < 1 {
				return errors.Errorf("--parallel must be >= 1, got %d", parallel)
			}
			validator, err := a.cfg.Validator()
			if err != nil {
				return err
			}

			descriptors := make([]job.JobDescriptor, len(args))
			for i, path := range args {
				if descriptors[i], err = job.Load(path); err != nil {
					return err
				}
			}

			if dryRun {
				return a.writeScripts(cmd, args, descriptors, validator)
			}

			b, err := newBoundary(a.cfg)
			if err != nil {
				return err
			}
			dispatcher := scheduler.NewDispatcher(b, validator)

			results := make([]scheduler.DispatchResult, len(descriptors))
			submittedAt := make([]time.Time, len(descriptors))
			var g errgroup.Group
			g.SetLimit(parallel)
			for i, d := range descriptors {
				i, d := i, d
				g.Go(func() error {
					submittedAt[i] = time.Now()
					results[i] = dispatcher.Submit(cmd.Context(), d)
					return nil
				})
			}
			_ = g.Wait()

			a.record(b.Name(), descriptors, results, submittedAt)

			failed := 0
			for i, result := range results {
				if result.Accepted {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: submitted job %s\n", args[i], result.SchedulerJobID)
					continue
				}
				failed++
				fmt.Fprintf(cmd.OutOrStdout(), "%s: not submitted (%s): %s\n", args[i], result.Failure, result.FailureReason)
			}
			if failed > 0 {
				return errors.Errorf("%d of %d jobs not submitted", failed, len(results))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Write the job scripts without submitting them")
	cmd.Flags().IntVar(&parallel, "parallel", 1, "Number of submissions in flight at once")
	return cmd
}

func (a *app) writeScripts(cmd *cobra.Command, paths []string, descriptors []job.JobDescriptor, validator job.Validator) error {
	dialect, err := a.dialect()
	if err != nil {
		return err
	}
	batch := boundary.NewBatch(dialect, a.cfg.JobDir)
	for i, d := range descriptors {
		if err := validator.Validate(d); err != nil {
			return errors.WithMessage(err, paths[i])
		}
		path, err := batch.WriteScript(scheduler.Request{Descriptor: d, Directives: job.Render(d)})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: wrote %s (dry run; not submitted)\n", paths[i], path)
	}
	return nil
}

// record keeps the outcomes in the ledger. The submissions already happened, so a ledger
// failure is logged rather than returned.
func (a *app) record(boundaryName string, descriptors []job.JobDescriptor, results []scheduler.DispatchResult, submittedAt []time.Time) {
	if err := db.InitDatabase(a.cfg.Ledger); err != nil {
		log.Warnf("[scheduler] -- Error opening ledger: %v", err)
		return
	}
	defer db.CloseDatabase()

	for i, result := range results {
		err := db.AddSubmission(db.Submission{
			ID:             uuid.New().String(),
			JobName:        descriptors[i].JobName,
			Account:        descriptors[i].BillingAccount,
			Boundary:       boundaryName,
			Accepted:       result.Accepted,
			SchedulerJobID: result.SchedulerJobID,
			FailureKind:    string(result.Failure),
			FailureReason:  result.FailureReason,
			SubmittedAt:    submittedAt[i],
		})
		if err != nil {
			log.Warnf("[scheduler] -- Error adding submission to ledger: %v", err)
		}
	}
}

func listCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recorded submissions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := db.InitDatabase(a.cfg.Ledger); err != nil {
				return err
			}
			defer db.CloseDatabase()

			submissions, err := db.LoadSubmissions()
			if err != nil {
				return err
			}
			if len(submissions) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No submissions recorded")
				return nil
			}
			for i, s := range submissions {
				outcome := "accepted as " + s.SchedulerJobID
				if !s.Accepted {
					outcome = fmt.Sprintf("%s: %s", s.FailureKind, s.FailureReason)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "[%d] %s  %s  account=%s  %s  %s\n",
					i+1, s.SubmittedAt.Local().Format(time.DateTime), s.JobName, s.Account, s.Boundary, outcome)
			}
			return nil
		},
	}
}
