package job

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/docker/go-units"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDescriptor() JobDescriptor {
	return JobDescriptor{
		WallClockLimit: WallClock(12 * time.Hour),
		NodeCount:      1,
		TasksPerNode:   1,
		CpusPerTask:    1,
		MemoryPerNode:  ByteQuantity(4 * units.GiB),
		JobName:        "bgt_2024-11-08-linear7",
		BillingAccount: "st-kevinlb-1",
		DispatchTarget: "task.run",
	}
}

func TestRender_CanonicalOrder(t *testing.T) {
	expected := DirectiveSet{
		{"time", "12:00:00"},
		{"nodes", "1"},
		{"ntasks-per-node", "1"},
		{"cpus-per-task", "1"},
		{"mem", "4gb"},
		{"job-name", "bgt_2024-11-08-linear7"},
		{"account", "st-kevinlb-1"},
	}
	d := testDescriptor()
	require.NoError(t, Validate(d))
	assert.Equal(t, expected, Render(d))
}

func TestRender_Deterministic(t *testing.T) {
	d := testDescriptor()
	d.GPUsPerNode = 2
	d.GPUMemory = ByteQuantity(16 * units.GiB)
	d.ArrayLength = 10
	first := Render(d)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Render(d))
	}
}

func TestRender_OptionalDirectives(t *testing.T) {
	d := testDescriptor()
	d.GPUsPerNode = 1
	d.GPUMemory = ByteQuantity(16 * units.GiB)
	d.OutputDir = "/scratch/out"
	d.ArrayLength = 3

	set := Render(d)
	require.Len(t, set, 11)
	assert.Equal(t, Directive{"account", "st-kevinlb-1"}, set[6])
	assert.Equal(t, DirectiveSet{
		{"gres", "gpu:1"},
		{"mem-per-gpu", "16gb"},
		{"output", "/scratch/out"},
		{"array", "1-3"},
	}, set[7:])
}

func TestDirectiveSet_With(t *testing.T) {
	set := Render(testDescriptor())

	added := set.With(KeyOutput, "/tmp/out")
	assert.Len(t, set, 7)
	require.Len(t, added, 8)
	v, ok := added.Get(KeyOutput)
	assert.True(t, ok)
	assert.Equal(t, "/tmp/out", v)

	replaced := set.With(KeyNodes, "4")
	v, _ = replaced.Get(KeyNodes)
	assert.Equal(t, "4", v)
	assert.Equal(t, KeyNodes, replaced[1].Key)
	v, _ = set.Get(KeyNodes)
	assert.Equal(t, "1", v)
}

func TestDirectiveSet_WithCanonicalPlace(t *testing.T) {
	d := testDescriptor()
	d.ArrayLength = 2
	set := Render(d)

	added := set.With(KeyOutput, "/out")
	require.Len(t, added, 9)
	assert.Equal(t, Directive{KeyOutput, "/out"}, added[7])
	assert.Equal(t, Directive{KeyArray, "1-2"}, added[8])
	assert.Len(t, set, 8)

	custom := set.With("qos", "high")
	assert.Equal(t, Directive{"qos", "high"}, custom[len(custom)-1])
}

func TestRender_ArrayArgs(t *testing.T) {
	d := testDescriptor()
	d.ArrayArgs = []string{"--fold 1", "--fold 2", "--fold 3"}
	require.NoError(t, Validate(d))

	v, ok := Render(d).Get(KeyArray)
	assert.True(t, ok)
	assert.Equal(t, "1-3", v)

	d.ArrayLength = 3
	assert.NoError(t, Validate(d))
}

func TestValidate_SubSecondWallClock(t *testing.T) {
	for _, w := range []time.Duration{time.Nanosecond, time.Millisecond, 500 * time.Millisecond} {
		d := testDescriptor()
		d.WallClockLimit = WallClock(w)
		assert.Equal(t, &ValidationError{Field: "wallClockLimit", Reason: "must be >= 1s"}, Validate(d), w.String())
	}

	d, err := Parse([]byte(`
wallClockLimit: 1ms
nodeCount: 1
tasksPerNode: 1
cpusPerTask: 1
memoryPerNode: 4gb
jobName: short
billingAccount: st-kevinlb-1
dispatchTarget: task.run
`))
	require.NoError(t, err)
	assert.Error(t, Validate(d))

	d = testDescriptor()
	d.WallClockLimit = WallClock(time.Second)
	assert.NoError(t, Validate(d))
}

func TestValidate_Valid(t *testing.T) {
	d := testDescriptor()
	assert.NoError(t, Validate(d))
	assert.NoError(t, Validate(d))
}

func TestValidate_NodeCountZero(t *testing.T) {
	d := testDescriptor()
	d.NodeCount = 0

	err := Validate(d)
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, &ValidationError{Field: "nodeCount", Reason: "must be >= 1"}, validationErr)
	assert.Equal(t, "nodeCount must be >= 1", err.Error())
}

func TestValidate_NonPositiveNumericFields(t *testing.T) {
	tests := map[string]struct {
		mutate func(d *JobDescriptor, v int)
		field  string
	}{
		"wallClockLimit": {func(d *JobDescriptor, v int) { d.WallClockLimit = WallClock(time.Duration(v) * time.Minute) }, "wallClockLimit"},
		"nodeCount":      {func(d *JobDescriptor, v int) { d.NodeCount = v }, "nodeCount"},
		"tasksPerNode":   {func(d *JobDescriptor, v int) { d.TasksPerNode = v }, "tasksPerNode"},
		"cpusPerTask":    {func(d *JobDescriptor, v int) { d.CpusPerTask = v }, "cpusPerTask"},
		"memoryPerNode":  {func(d *JobDescriptor, v int) { d.MemoryPerNode = ByteQuantity(v) }, "memoryPerNode"},
	}
	for name, tc := range tests {
		for _, v := range []int{0, -1, -100} {
			t.Run(name, func(t *testing.T) {
				d := testDescriptor()
				tc.mutate(&d, v)
				var validationErr *ValidationError
				require.ErrorAs(t, Validate(d), &validationErr)
				assert.Equal(t, tc.field, validationErr.Field)
			})
		}
	}
}

func TestValidate_FailsFastInFieldOrder(t *testing.T) {
	d := testDescriptor()
	d.TasksPerNode = 0
	d.JobName = ""
	d.DispatchTarget = ""

	var validationErr *ValidationError
	require.ErrorAs(t, Validate(d), &validationErr)
	assert.Equal(t, "tasksPerNode", validationErr.Field)
}

func TestValidate_Strings(t *testing.T) {
	tests := map[string]struct {
		mutate func(d *JobDescriptor)
		field  string
		reason string
	}{
		"empty job name": {
			mutate: func(d *JobDescriptor) { d.JobName = "" },
			field:  "jobName",
			reason: "must not be empty",
		},
		"job name with space": {
			mutate: func(d *JobDescriptor) { d.JobName = "my job" },
			field:  "jobName",
			reason: "must match " + DefaultNameRule.String(),
		},
		"job name starting with dot": {
			mutate: func(d *JobDescriptor) { d.JobName = ".." },
			field:  "jobName",
			reason: "must match " + DefaultNameRule.String(),
		},
		"empty account": {
			mutate: func(d *JobDescriptor) { d.BillingAccount = "" },
			field:  "billingAccount",
			reason: "must not be empty",
		},
		"blank target": {
			mutate: func(d *JobDescriptor) { d.DispatchTarget = "  " },
			field:  "dispatchTarget",
			reason: "must not be empty",
		},
		"multi line target": {
			mutate: func(d *JobDescriptor) { d.DispatchTarget = "task.run\nrm -rf /" },
			field:  "dispatchTarget",
			reason: "must be a single entry point",
		},
		"gpu memory without gpus": {
			mutate: func(d *JobDescriptor) { d.GPUMemory = ByteQuantity(units.GiB) },
			field:  "gpuMemory",
			reason: "requires gpusPerNode > 0",
		},
		"output dir with space": {
			mutate: func(d *JobDescriptor) { d.OutputDir = "/home/a b/out" },
			field:  "outputDir",
			reason: "must not contain whitespace",
		},
		"array length not matching array args": {
			mutate: func(d *JobDescriptor) { d.ArrayLength = 2; d.ArrayArgs = []string{"a", "b", "c"} },
			field:  "arrayLength",
			reason: "must be 0 or 3 to match arrayArgs",
		},
		"multi line array arg": {
			mutate: func(d *JobDescriptor) { d.ArrayArgs = []string{"a", "b\nc"} },
			field:  "arrayArgs",
			reason: "entry 2 must be a single line",
		},
		"parallel args in an array job": {
			mutate: func(d *JobDescriptor) { d.ArrayLength = 2; d.ParallelArgs = []string{"a", "b"} },
			field:  "parallelArgs",
			reason: "cannot be combined with an array job",
		},
		"negative array length": {
			mutate: func(d *JobDescriptor) { d.ArrayLength = -1 },
			field:  "arrayLength",
			reason: "must be >= 0",
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			d := testDescriptor()
			tc.mutate(&d)
			err := Validate(d)
			assert.Equal(t, &ValidationError{Field: tc.field, Reason: tc.reason}, err)
		})
	}
}

func TestValidator_CustomRules(t *testing.T) {
	rule, err := NewRegexpRule(`^[a-z]+-[0-9]+$`)
	require.NoError(t, err)
	v := Validator{AccountRule: rule}

	d := testDescriptor()
	d.JobName = "any name goes"
	d.BillingAccount = "def-someone"
	assert.Equal(t, &ValidationError{Field: "billingAccount", Reason: "must match ^[a-z]+-[0-9]+$"}, v.Validate(d))

	d.BillingAccount = "rrg-12"
	assert.NoError(t, v.Validate(d))
}

func TestValidator_Limits(t *testing.T) {
	v := DefaultValidator()
	v.Limits = Limits{
		MaxWallClock:     7 * 24 * time.Hour,
		MaxNodes:         4,
		MaxMemoryPerNode: 64 * units.GiB,
	}

	d := testDescriptor()
	assert.NoError(t, v.Validate(d))

	d.WallClockLimit = WallClock(8 * 24 * time.Hour)
	assert.Equal(t, &ValidationError{Field: "wallClockLimit", Reason: "must be <= 7-00:00:00"}, v.Validate(d))

	d = testDescriptor()
	d.NodeCount = 5
	assert.Equal(t, &ValidationError{Field: "nodeCount", Reason: "must be <= 4"}, v.Validate(d))

	d = testDescriptor()
	d.MemoryPerNode = ByteQuantity(128 * units.GiB)
	assert.Equal(t, &ValidationError{Field: "memoryPerNode", Reason: "must be <= 64gb"}, v.Validate(d))
}

func TestFormatWallClock(t *testing.T) {
	assert.Equal(t, "00:00:00", FormatWallClock(0))
	assert.Equal(t, "01:00:00", FormatWallClock(60*time.Minute))
	assert.Equal(t, "01:01:00", FormatWallClock(61*time.Minute))
	assert.Equal(t, "1-00:00:00", FormatWallClock(1440*time.Minute))
	assert.Equal(t, "1-00:01:00", FormatWallClock(1441*time.Minute))
	assert.Equal(t, "7-00:00:00", FormatWallClock(7*1440*time.Minute))
	assert.Equal(t, "00:00:30", FormatWallClock(30*time.Second))
	assert.Equal(t, "00:00:01", FormatWallClock(500*time.Millisecond))
	assert.Equal(t, "00:01:01", FormatWallClock(time.Minute+time.Millisecond))
}

func TestParseWallClock(t *testing.T) {
	tests := map[string]time.Duration{
		"12h":        12 * time.Hour,
		"90m":        90 * time.Minute,
		"90":         90 * time.Minute,
		"10:30":      10*time.Minute + 30*time.Second,
		"12:00:00":   12 * time.Hour,
		"2-12":       60 * time.Hour,
		"1-01:30":    25*time.Hour + 30*time.Minute,
		"1-00:00:05": 24*time.Hour + 5*time.Second,
		" 01:00:00 ": time.Hour,
	}
	for in, expected := range tests {
		t.Run(in, func(t *testing.T) {
			d, err := ParseWallClock(in)
			require.NoError(t, err)
			assert.Equal(t, expected, d)
		})
	}

	for _, in := range []string{"", "abc", "1:2:3:4", "x-01:00:00", "01:-5:00", "999999999999", "200000-00:00:00", "106751-23:59:59"} {
		_, err := ParseWallClock(in)
		assert.Error(t, err, in)
	}
}

func TestFormatMemory(t *testing.T) {
	assert.Equal(t, "4gb", FormatMemory(4*units.GiB))
	assert.Equal(t, "1536mb", FormatMemory(1536*units.MiB))
	assert.Equal(t, "1tb", FormatMemory(units.TiB))
	assert.Equal(t, "10kb", FormatMemory(10*units.KiB))
	assert.Equal(t, "1kb", FormatMemory(1))
	assert.Equal(t, "2kb", FormatMemory(units.KiB+1))
}

func TestParse_Yaml(t *testing.T) {
	d, err := Parse([]byte(`
wallClockLimit: 12h
nodeCount: 1
tasksPerNode: 1
cpusPerTask: 1
memoryPerNode: 4gb
jobName: bgt_2024-11-08-linear7
billingAccount: st-kevinlb-1
dispatchTarget: task.run
`))
	require.NoError(t, err)
	assert.Equal(t, testDescriptor(), d)
}

func TestParse_JsonWithMinutesAndBytes(t *testing.T) {
	d, err := Parse([]byte(`{
  "wallClockLimit": 720,
  "nodeCount": 1,
  "tasksPerNode": 1,
  "cpusPerTask": 1,
  "memoryPerNode": 4294967296,
  "jobName": "bgt_2024-11-08-linear7",
  "billingAccount": "st-kevinlb-1",
  "dispatchTarget": "task.run"
}`))
	require.NoError(t, err)
	assert.Equal(t, testDescriptor(), d)
}

func TestParse_MinutesOverflow(t *testing.T) {
	_, err := Parse([]byte("wallClockLimit: 153722867280912931\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("wallClockLimit: 153722867\n"))
	assert.NoError(t, err)
}

func TestParse_UnknownField(t *testing.T) {
	_, err := Parse([]byte("nodeCount: 1\nmemory: 4gb\n"))
	assert.Error(t, err)
}

func TestParse_BadQuantity(t *testing.T) {
	_, err := Parse([]byte("memoryPerNode: lots\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("wallClockLimit: forever\n"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
wallClockLimit: "1-00:00:00"
nodeCount: 2
tasksPerNode: 4
cpusPerTask: 8
memoryPerNode: 32GiB
jobName: sweep
billingAccount: def-lab
dispatchTarget: python main.py
setup: module load python
`), 0o644))

	d, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, d.WallClockLimit.Duration())
	assert.Equal(t, ByteQuantity(32*units.GiB), d.MemoryPerNode)
	assert.Equal(t, "module load python", d.Setup)
	assert.NoError(t, Validate(d))

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
