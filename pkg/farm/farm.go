// Package farm lays out META-Farm directories: one worker job script that works through a
// table of cases, a resubmission script and an optional final job.
package farm

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"sigs.k8s.io/yaml"

	"mini-hpc-submit/pkg/job"
	"mini-hpc-submit/pkg/script"
)

const (
	JobScript      = "job_script.sh"
	ResubmitScript = "resubmit_script.sh"
	TableFile      = "table.dat"
	FinalScript    = "final.sh"

	// Entry points provided by META-Farm.
	WorkerTarget   = "task.run"
	ResubmitTarget = "autojob.run"
)

// Spec describes a farm. The dispatch target of Job is set by the farm; Final keeps its own.
type Spec struct {
	Job   job.JobDescriptor  `json:"job"`
	Cases []string           `json:"cases"`
	Final *job.JobDescriptor `json:"final,omitempty"`
}

func Load(path string) (Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Spec{}, errors.Wrapf(err, "failed opening file %s", path)
	}
	var spec Spec
	if err := yaml.UnmarshalStrict(data, &spec); err != nil {
		return Spec{}, errors.Wrapf(err, "failed to parse farm spec %s", path)
	}
	return spec, nil
}

// Validate checks every job of the farm and the case table and reports all problems.
func Validate(spec Spec, validator job.Validator) error {
	var result *multierror.Error
	if len(spec.Cases) == 0 {
		result = multierror.Append(result, errors.New("farm has no cases"))
	}
	for i, c := range spec.Cases {
		if strings.TrimSpace(c) == "" || strings.ContainsAny(c, "\r\n") {
			result = multierror.Append(result, errors.Errorf("case %d must be a single non-empty line", i+1))
		}
	}
	if len(spec.Job.ArrayArgs) > 0 || len(spec.Job.ParallelArgs) > 0 {
		result = multierror.Append(result, errors.New("job: arrayArgs and parallelArgs are not used in a farm; list the runs as cases"))
	}
	worker := spec.Job
	worker.DispatchTarget = WorkerTarget
	if err := validator.Validate(worker); err != nil {
		result = multierror.Append(result, errors.WithMessage(err, "job"))
	}
	if spec.Final != nil {
		if err := validator.Validate(*spec.Final); err != nil {
			result = multierror.Append(result, errors.WithMessage(err, "final"))
		}
	}
	return result.ErrorOrNil()
}

// Make creates the farm in dir, which must not exist yet. Nothing is written unless the
// whole spec is valid.
func Make(dir string, spec Spec, dialect script.Dialect, validator job.Validator) error {
	if err := Validate(spec, validator); err != nil {
		return err
	}
	if err := os.Mkdir(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create farm directory %s", dir)
	}

	worker := spec.Job
	worker.DispatchTarget = WorkerTarget
	resubmit := spec.Job
	resubmit.DispatchTarget = ResubmitTarget

	files := map[string]string{
		JobScript:      jobScript(dialect, worker),
		ResubmitScript: jobScript(dialect, resubmit),
		TableFile:      Table(spec.Cases),
	}
	if spec.Final != nil {
		files[FinalScript] = jobScript(dialect, *spec.Final)
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return errors.Wrapf(err, "failed to write %s", path)
		}
	}

	log.Infof("[farm] -- Successfully created farm in %s", dir)
	return nil
}

// Table numbers the cases from 1, one per line, as META-Farm expects in table.dat.
func Table(cases []string) string {
	lines := make([]string, len(cases))
	for i, c := range cases {
		lines[i] = fmt.Sprintf("%d %s", i+1, c)
	}
	return strings.Join(lines, "\n")
}

func jobScript(dialect script.Dialect, d job.JobDescriptor) string {
	return script.Build(dialect, job.Render(d), d.Setup, script.Body(dialect, d))
}
