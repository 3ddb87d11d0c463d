package job

// JobDescriptor is one submission request: what to allocate, who pays for it and what to run.
// It is treated as a value: copy it, don't share pointers to it.
type JobDescriptor struct {
	WallClockLimit WallClock    `json:"wallClockLimit"` // Maximum run time
	NodeCount      int          `json:"nodeCount"`      // Number of nodes
	TasksPerNode   int          `json:"tasksPerNode"`   // Tasks (ranks) per node
	CpusPerTask    int          `json:"cpusPerTask"`    // CPU cores per task
	MemoryPerNode  ByteQuantity `json:"memoryPerNode"`  // Memory per node
	JobName        string       `json:"jobName"`        // Job name as shown by the scheduler
	BillingAccount string       `json:"billingAccount"` // Allocation charged for the job
	DispatchTarget string       `json:"dispatchTarget"` // Entry point executed on the allocation

	GPUsPerNode int          `json:"gpusPerNode,omitempty"` // GPUs per node (0 = none)
	GPUMemory   ByteQuantity `json:"gpuMemory,omitempty"`   // Memory per GPU (0 = scheduler default)
	OutputDir   string       `json:"outputDir,omitempty"`   // Directory for scheduler output files
	ArrayLength int          `json:"arrayLength,omitempty"` // Array job size (0 = not an array job)
	Setup       string       `json:"setup,omitempty"`       // Shell lines run before the dispatch target

	// ArrayArgs makes an array job whose i-th task runs the dispatch target with the i-th
	// arguments. ParallelArgs runs the dispatch target once per entry, all at the same time,
	// inside a single job.
	ArrayArgs    []string `json:"arrayArgs,omitempty"`
	ParallelArgs []string `json:"parallelArgs,omitempty"`
}

// ArraySize is the number of array tasks, 0 for a plain job.
func (d JobDescriptor) ArraySize() int {
	if len(d.ArrayArgs) > 0 {
		return len(d.ArrayArgs)
	}
	return d.ArrayLength
}

// IsArray reports whether the descriptor requests an array job.
func (d JobDescriptor) IsArray() bool {
	return d.ArraySize() > 0
}
