package script

import (
	"path"
	"strconv"
	"strings"

	"mini-hpc-submit/pkg/job"
)

const pbsPrefix = "#PBS"

// PBS folds the resource directives into a single "-l" select statement.
type PBS struct{}

func (PBS) Name() string { return "pbs" }

func (p PBS) Header(directives job.DirectiveSet) []string {
	get := func(key string) string {
		v, _ := directives.Get(key)
		return v
	}

	tasks := get(job.KeyTasksPerNode)
	resources := "walltime=" + get(job.KeyTime) +
		",select=" + get(job.KeyNodes) +
		":ncpus=" + cpusPerNode(tasks, get(job.KeyCpusPerTask)) +
		":mpiprocs=" + tasks +
		":mem=" + get(job.KeyMemory)
	if gres, ok := directives.Get(job.KeyGres); ok {
		resources += ":ngpus=" + strings.TrimPrefix(gres, "gpu:")
	}
	if gpuMem, ok := directives.Get(job.KeyMemoryPerGPU); ok {
		resources += ":gpu_mem=" + gpuMem
	}

	_, array := directives.Get(job.KeyArray)
	lines := []string{
		pbsPrefix + " -l " + resources,
		pbsPrefix + " -N " + get(job.KeyJobName),
		pbsPrefix + " -A " + get(job.KeyAccount),
		pbsPrefix + " -j oe",
	}
	if out, ok := directives.Get(job.KeyOutput); ok {
		lines = append(lines, pbsPrefix+" -o "+p.OutputPattern(out, array))
	}
	if array {
		lines = append(lines, pbsPrefix+" -J "+get(job.KeyArray))
	}
	return lines
}

// cpusPerNode is tasks*cpus; PBS counts cores per chunk, not per task.
func cpusPerNode(tasks, cpus string) string {
	t, errT := strconv.Atoi(tasks)
	c, errC := strconv.Atoi(cpus)
	if errT != nil || errC != nil {
		return cpus
	}
	return strconv.Itoa(t * c)
}

func (PBS) OutputPattern(dir string, array bool) string {
	if array {
		return path.Join(dir, "^array_index^.txt")
	}
	return path.Join(dir, "out.txt")
}

func (PBS) SubmitCommand() []string { return []string{"qsub"} }

func (PBS) Extension() string { return "pbs" }

func (PBS) ArrayIndexVar() string { return "$PBS_ARRAY_INDEX" }
