// Package boundary contains the scheduler boundaries a Dispatcher can submit to.
package boundary

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"mini-hpc-submit/pkg/job"
	"mini-hpc-submit/pkg/scheduler"
	"mini-hpc-submit/pkg/script"
)

// CommandResult is the output of a finished command.
type CommandResult struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Runner runs a command to completion. It returns an error only when the command could
// not be started; a non-zero exit is reported through ExitCode.
type Runner func(ctx context.Context, name string, args ...string) (CommandResult, error)

func ExecRunner(ctx context.Context, name string, args ...string) (CommandResult, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	result := CommandResult{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}
	return result, err
}

// Batch writes a job script into the job directory and submits it with the dialect's
// submit command (sbatch or qsub).
type Batch struct {
	Dialect script.Dialect
	JobDir  string
	Run     Runner
}

func NewBatch(dialect script.Dialect, jobDir string) *Batch {
	return &Batch{
		Dialect: dialect,
		JobDir:  jobDir,
		Run:     ExecRunner,
	}
}

func (b *Batch) Name() string {
	return b.Dialect.Name()
}

// WriteScript writes the job script to <JobDir>/<jobName>/jobs/<uuid>.<ext> and returns
// its path. Without an output directory in the directives, output goes to
// <JobDir>/<jobName>/output/<uuid>.
func (b *Batch) WriteScript(req scheduler.Request) (string, error) {
	id, err := uuid.NewUUID()
	if err != nil {
		return "", errors.Wrap(err, "failed to generate script id")
	}
	d := req.Descriptor
	base := filepath.Join(b.JobDir, d.JobName)
	path := filepath.Join(base, "jobs", id.String()+"."+b.Dialect.Extension())

	directives := req.Directives
	outputDir, ok := directives.Get(job.KeyOutput)
	if !ok {
		outputDir = filepath.Join(base, "output", id.String())
		if strings.ContainsAny(outputDir, " \t") {
			return "", errors.Errorf("output directory %s contains whitespace", outputDir)
		}
		directives = directives.With(job.KeyOutput, outputDir)
	}

	for _, dir := range []string{filepath.Dir(path), outputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", errors.Wrapf(err, "failed to create directory %s", dir)
		}
	}

	body := script.Build(b.Dialect, directives, d.Setup, script.Body(b.Dialect, d))
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		return "", errors.Wrapf(err, "failed to write job script %s", path)
	}
	log.Infof("[boundary] -- Wrote job to %s", path)
	return path, nil
}

func (b *Batch) Submit(ctx context.Context, req scheduler.Request) (string, error) {
	path, err := b.WriteScript(req)
	if err != nil {
		return "", &scheduler.LaunchError{Err: err}
	}

	command := b.Dialect.SubmitCommand()
	args := append(append([]string{}, command[1:]...), path)
	result, err := b.Run(ctx, command[0], args...)
	if err != nil {
		return "", &scheduler.LaunchError{Target: command[0], Err: err}
	}
	if ctx.Err() != nil {
		return "", &scheduler.RejectionError{Reason: fmt.Sprintf("%s did not finish: %v", command[0], ctx.Err())}
	}
	if result.ExitCode != 0 {
		return "", &scheduler.RejectionError{Reason: rejectionReason(command[0], result)}
	}

	id := parseJobID(string(result.Stdout))
	if id == "" {
		return "", &scheduler.RejectionError{Reason: fmt.Sprintf("%s printed no job id", command[0])}
	}
	return id, nil
}

func rejectionReason(command string, result CommandResult) string {
	if reason := strings.TrimSpace(string(result.Stderr)); reason != "" {
		return reason
	}
	if reason := strings.TrimSpace(string(result.Stdout)); reason != "" {
		return reason
	}
	return fmt.Sprintf("%s exited with status %d", command, result.ExitCode)
}

// parseJobID understands "123", "123;cluster" (sbatch --parsable), "Submitted batch job 123"
// and "123.server" (qsub, kept whole).
func parseJobID(stdout string) string {
	line := strings.TrimSpace(stdout)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	line = strings.TrimPrefix(line, "Submitted batch job ")
	if i := strings.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	return line
}
