package job

import (
	"fmt"
	"strconv"
)

// Directive keys, in canonical order. Optional keys follow the canonical ones.
// The value of KeyOutput is a directory; dialects turn it into a file pattern.
const (
	KeyTime         = "time"
	KeyNodes        = "nodes"
	KeyTasksPerNode = "ntasks-per-node"
	KeyCpusPerTask  = "cpus-per-task"
	KeyMemory       = "mem"
	KeyJobName      = "job-name"
	KeyAccount      = "account"
	KeyGres         = "gres"
	KeyMemoryPerGPU = "mem-per-gpu"
	KeyOutput       = "output"
	KeyArray        = "array"
)

// Directive is one key/value pair of a submission.
type Directive struct {
	Key   string
	Value string
}

// DirectiveSet is an ordered list of directives. Order is significant.
type DirectiveSet []Directive

// Get returns the value of key.
func (s DirectiveSet) Get(key string) (string, bool) {
	for _, d := range s {
		if d.Key == key {
			return d.Value, true
		}
	}
	return "", false
}

// With returns a copy of s with key set to value. An existing key keeps its position.
// A new directive key goes to its canonical place; other keys are appended.
func (s DirectiveSet) With(key, value string) DirectiveSet {
	out := make(DirectiveSet, 0, len(s)+1)
	out = append(out, s...)
	for i := range out {
		if out[i].Key == key {
			out[i].Value = value
			return out
		}
	}

	at := len(out)
	if rank, ok := keyRank[key]; ok {
		for i, d := range out {
			if r, known := keyRank[d.Key]; known && r > rank {
				at = i
				break
			}
		}
	}
	out = append(out, Directive{})
	copy(out[at+1:], out[at:])
	out[at] = Directive{Key: key, Value: value}
	return out
}

var keyRank = map[string]int{
	KeyTime:         0,
	KeyNodes:        1,
	KeyTasksPerNode: 2,
	KeyCpusPerTask:  3,
	KeyMemory:       4,
	KeyJobName:      5,
	KeyAccount:      6,
	KeyGres:         7,
	KeyMemoryPerGPU: 8,
	KeyOutput:       9,
	KeyArray:        10,
}

// Render maps a descriptor to its directives. The result only depends on d.
func Render(d JobDescriptor) DirectiveSet {
	set := DirectiveSet{
		{KeyTime, d.WallClockLimit.String()},
		{KeyNodes, strconv.Itoa(d.NodeCount)},
		{KeyTasksPerNode, strconv.Itoa(d.TasksPerNode)},
		{KeyCpusPerTask, strconv.Itoa(d.CpusPerTask)},
		{KeyMemory, d.MemoryPerNode.String()},
		{KeyJobName, d.JobName},
		{KeyAccount, d.BillingAccount},
	}
	if d.GPUsPerNode > 0 {
		set = append(set, Directive{KeyGres, fmt.Sprintf("gpu:%d", d.GPUsPerNode)})
	}
	if d.GPUMemory > 0 {
		set = append(set, Directive{KeyMemoryPerGPU, d.GPUMemory.String()})
	}
	if d.OutputDir != "" {
		set = append(set, Directive{KeyOutput, d.OutputDir})
	}
	if d.IsArray() {
		set = append(set, Directive{KeyArray, fmt.Sprintf("1-%d", d.ArraySize())})
	}
	return set
}
