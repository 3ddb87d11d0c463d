// Package config loads mini-hpc-submit settings from an optional config file, CLUSTER_UTILS_*
// environment variables and command line flags.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"mini-hpc-submit/pkg/job"
)

const EnvPrefix = "CLUSTER_UTILS"

type Config struct {
	JobDir   string       `mapstructure:"job_dir"`  // Where job scripts and output directories are created
	Platform string       `mapstructure:"platform"` // slurm, pbs or docker
	Ledger   string       `mapstructure:"ledger"`   // SQLite file recording submissions
	Docker   DockerConfig `mapstructure:"docker"`
	Log      LogConfig    `mapstructure:"log"`
	Limits   LimitsConfig `mapstructure:"limits"`
	Rules    RulesConfig  `mapstructure:"rules"`
}

type DockerConfig struct {
	Image string `mapstructure:"image"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// LimitsConfig caps resource requests. Zero or empty means unbounded.
type LimitsConfig struct {
	WallClock     string `mapstructure:"wall_clock"`
	Nodes         int    `mapstructure:"nodes"`
	TasksPerNode  int    `mapstructure:"tasks_per_node"`
	CpusPerTask   int    `mapstructure:"cpus_per_task"`
	MemoryPerNode string `mapstructure:"memory_per_node"`
	GPUsPerNode   int    `mapstructure:"gpus_per_node"`
	ArrayLength   int    `mapstructure:"array_length"`
}

// RulesConfig overrides the legal character sets for names. Empty keeps the default.
type RulesConfig struct {
	JobName string `mapstructure:"job_name"`
	Account string `mapstructure:"account"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("job_dir", "~/scratch/jobs")
	v.SetDefault("platform", "slurm")
	v.SetDefault("ledger", "mini-hpc-submit.db")
	v.SetDefault("docker.image", "ubuntu:latest")
	v.SetDefault("log.level", "info")

	// AutomaticEnv only applies to keys viper already knows about.
	v.SetDefault("limits.wall_clock", "")
	v.SetDefault("limits.nodes", 0)
	v.SetDefault("limits.tasks_per_node", 0)
	v.SetDefault("limits.cpus_per_task", 0)
	v.SetDefault("limits.memory_per_node", "")
	v.SetDefault("limits.gpus_per_node", 0)
	v.SetDefault("limits.array_length", 0)
	v.SetDefault("rules.job_name", "")
	v.SetDefault("rules.account", "")
}

// New returns a viper instance with defaults and environment binding set up.
// CLUSTER_UTILS_JOB_DIR sets job_dir, CLUSTER_UTILS_DOCKER_IMAGE sets docker.image, and so on.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file, if any, and decodes the result. An explicit file must exist;
// otherwise config.yaml is looked up in the working directory and $HOME/.mini-hpc-submit.
func Load(v *viper.Viper, file string) (Config, error) {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".mini-hpc-submit"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return Config{}, errors.Wrap(err, "failed to read config")
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, errors.Wrap(err, "failed to decode config")
	}
	c.JobDir = expandHome(c.JobDir)
	c.Platform = strings.ToLower(c.Platform)
	return c, nil
}

// Validator builds the descriptor validator from limits and rules.
func (c Config) Validator() (job.Validator, error) {
	v := job.DefaultValidator()
	l := c.Limits
	v.Limits = job.Limits{
		MaxNodes:        l.Nodes,
		MaxTasksPerNode: l.TasksPerNode,
		MaxCpusPerTask:  l.CpusPerTask,
		MaxGPUsPerNode:  l.GPUsPerNode,
		MaxArrayLength:  l.ArrayLength,
	}
	if l.WallClock != "" {
		d, err := job.ParseWallClock(l.WallClock)
		if err != nil {
			return job.Validator{}, errors.WithMessage(err, "limits.wall_clock")
		}
		v.Limits.MaxWallClock = d
	}
	if l.MemoryPerNode != "" {
		m, err := job.ParseMemory(l.MemoryPerNode)
		if err != nil {
			return job.Validator{}, errors.WithMessage(err, "limits.memory_per_node")
		}
		v.Limits.MaxMemoryPerNode = m
	}
	if c.Rules.JobName != "" {
		rule, err := job.NewRegexpRule(c.Rules.JobName)
		if err != nil {
			return job.Validator{}, errors.Wrap(err, "rules.job_name")
		}
		v.JobNameRule = rule
	}
	if c.Rules.Account != "" {
		rule, err := job.NewRegexpRule(c.Rules.Account)
		if err != nil {
			return job.Validator{}, errors.Wrap(err, "rules.account")
		}
		v.AccountRule = rule
	}
	return v, nil
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
