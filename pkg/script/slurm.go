package script

import (
	"path"

	"mini-hpc-submit/pkg/job"
)

const slurmPrefix = "#SBATCH"

// Slurm writes one "#SBATCH --key=value" line per directive, keeping their order.
type Slurm struct{}

func (Slurm) Name() string { return "slurm" }

func (s Slurm) Header(directives job.DirectiveSet) []string {
	_, array := directives.Get(job.KeyArray)
	lines := make([]string, 0, len(directives))
	for _, d := range directives {
		value := d.Value
		if d.Key == job.KeyOutput {
			value = s.OutputPattern(d.Value, array)
		}
		lines = append(lines, slurmPrefix+" --"+d.Key+"="+value)
	}
	return lines
}

func (Slurm) OutputPattern(dir string, array bool) string {
	if array {
		return path.Join(dir, "%x-%j-%a.txt")
	}
	return path.Join(dir, "%x-%j.txt")
}

func (Slurm) SubmitCommand() []string { return []string{"sbatch", "--parsable"} }

func (Slurm) Extension() string { return "sh" }

func (Slurm) ArrayIndexVar() string { return "$SLURM_ARRAY_TASK_ID" }
