package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"mini-hpc-submit/pkg/boundary"
	"mini-hpc-submit/pkg/config"
	"mini-hpc-submit/pkg/logging"
	"mini-hpc-submit/pkg/scheduler"
	"mini-hpc-submit/pkg/script"
)

func main() {
	logging.ConfigureCommandLineLogging()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		log.Error(err)
		stop()
		os.Exit(1)
	}
}

// app carries the configuration shared by all commands.
type app struct {
	v          *viper.Viper
	configFile string
	cfg        config.Config
}

func rootCmd() *cobra.Command {
	a := &app{v: config.New()}

	cmd := &cobra.Command{
		Use:   "mini-hpc-submit",
		Short: "Mini HPC job submission",
		Long:  `Validate, render and submit batch job descriptors to Slurm, PBS or a local docker daemon.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "Config file (default ./config.yaml or ~/.mini-hpc-submit/config.yaml)")
	flags.String("platform", "", "Scheduler platform: slurm, pbs or docker")
	flags.String("job-dir", "", "Directory for job scripts and output")
	flags.String("ledger", "", "SQLite file recording submissions")
	flags.String("log-level", "", "Log level")
	for key, flag := range map[string]string{
		"platform":  "platform",
		"job_dir":   "job-dir",
		"ledger":    "ledger",
		"log.level": "log-level",
	} {
		if err := a.v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(err)
		}
	}

	cmd.AddCommand(
		validateCmd(a),
		renderCmd(a),
		submitCmd(a),
		listCmd(a),
		farmCmd(a),
	)
	return cmd
}

func (a *app) load() error {
	cfg, err := config.Load(a.v, a.configFile)
	if err != nil {
		return err
	}
	if err := logging.SetLevel(cfg.Log.Level); err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

// newBoundary is replaced in tests.
var newBoundary = func(cfg config.Config) (scheduler.Boundary, error) {
	if cfg.Platform == "docker" {
		return boundary.NewDocker(cfg.Docker.Image)
	}
	dialect, err := script.Lookup(cfg.Platform)
	if err != nil {
		return nil, err
	}
	return boundary.NewBatch(dialect, cfg.JobDir), nil
}

func (a *app) dialect() (script.Dialect, error) {
	if a.cfg.Platform == "docker" {
		return nil, errors.New("docker jobs have no batch script; use --platform slurm or pbs")
	}
	return script.Lookup(a.cfg.Platform)
}
