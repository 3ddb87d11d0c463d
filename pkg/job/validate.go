package job

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ValidationError names the first descriptor field that broke an invariant.
type ValidationError struct {
	Field  string // Descriptor field, e.g. "nodeCount"
	Reason string // What is wrong with it, e.g. "must be >= 1"
}

func (err *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", err.Field, err.Reason)
}

// CharsetRule decides which characters a scheduler accepts in a name.
// Legal character sets differ between sites, so they are configurable.
type CharsetRule interface {
	Allows(value string) bool
	String() string
}

// RegexpRule accepts values matching a regular expression.
type RegexpRule struct {
	Pattern *regexp.Regexp
}

func NewRegexpRule(expr string) (RegexpRule, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return RegexpRule{}, err
	}
	return RegexpRule{Pattern: re}, nil
}

func (r RegexpRule) Allows(value string) bool {
	return r.Pattern.MatchString(value)
}

func (r RegexpRule) String() string {
	return r.Pattern.String()
}

// DefaultNameRule is accepted by both Slurm and PBS. A leading dot is refused because
// job names become directory names under the job directory.
var DefaultNameRule = RegexpRule{Pattern: regexp.MustCompile(`^[A-Za-z0-9_-][A-Za-z0-9._-]*$`)}

// Limits are upper bounds for the numeric fields. Zero means unbounded.
type Limits struct {
	MaxWallClock     time.Duration
	MaxNodes         int
	MaxTasksPerNode  int
	MaxCpusPerTask   int
	MaxMemoryPerNode int64
	MaxGPUsPerNode   int
	MaxArrayLength   int
}

// Validator checks descriptors against the invariants plus site specific rules.
// A nil rule disables the charset check for that field.
type Validator struct {
	Limits      Limits
	JobNameRule CharsetRule
	AccountRule CharsetRule
}

func DefaultValidator() Validator {
	return Validator{
		JobNameRule: DefaultNameRule,
		AccountRule: DefaultNameRule,
	}
}

// Validate checks d with the default validator.
func Validate(d JobDescriptor) error {
	return DefaultValidator().Validate(d)
}

// Validate returns a *ValidationError for the first field, in descriptor order, that
// violates an invariant. It has no side effects.
func (v Validator) Validate(d JobDescriptor) error {
	if d.WallClockLimit <= 0 {
		return invalid("wallClockLimit", "must be > 0")
	}
	if d.WallClockLimit.Duration() < time.Second {
		return invalid("wallClockLimit", "must be >= 1s")
	}
	if v.Limits.MaxWallClock > 0 && d.WallClockLimit.Duration() > v.Limits.MaxWallClock {
		return invalid("wallClockLimit", "must be <= "+FormatWallClock(v.Limits.MaxWallClock))
	}
	if err := checkCount("nodeCount", d.NodeCount, 1, v.Limits.MaxNodes); err != nil {
		return err
	}
	if err := checkCount("tasksPerNode", d.TasksPerNode, 1, v.Limits.MaxTasksPerNode); err != nil {
		return err
	}
	if err := checkCount("cpusPerTask", d.CpusPerTask, 1, v.Limits.MaxCpusPerTask); err != nil {
		return err
	}
	if d.MemoryPerNode <= 0 {
		return invalid("memoryPerNode", "must be > 0")
	}
	if v.Limits.MaxMemoryPerNode > 0 && int64(d.MemoryPerNode) > v.Limits.MaxMemoryPerNode {
		return invalid("memoryPerNode", "must be <= "+FormatMemory(v.Limits.MaxMemoryPerNode))
	}
	if err := checkName("jobName", d.JobName, v.JobNameRule); err != nil {
		return err
	}
	if err := checkName("billingAccount", d.BillingAccount, v.AccountRule); err != nil {
		return err
	}
	if strings.TrimSpace(d.DispatchTarget) == "" {
		return invalid("dispatchTarget", "must not be empty")
	}
	if strings.ContainsAny(d.DispatchTarget, "\r\n") {
		return invalid("dispatchTarget", "must be a single entry point")
	}

	if err := checkCount("gpusPerNode", d.GPUsPerNode, 0, v.Limits.MaxGPUsPerNode); err != nil {
		return err
	}
	if d.GPUMemory < 0 {
		return invalid("gpuMemory", "must be >= 0")
	}
	if d.GPUMemory > 0 && d.GPUsPerNode == 0 {
		return invalid("gpuMemory", "requires gpusPerNode > 0")
	}
	if strings.ContainsAny(d.OutputDir, "\r\n") {
		return invalid("outputDir", "must be a single line")
	}
	// Schedulers split directive values on whitespace.
	if strings.ContainsAny(d.OutputDir, " \t") {
		return invalid("outputDir", "must not contain whitespace")
	}
	if err := checkCount("arrayLength", d.ArrayLength, 0, v.Limits.MaxArrayLength); err != nil {
		return err
	}
	if len(d.ArrayArgs) > 0 {
		if d.ArrayLength > 0 && d.ArrayLength != len(d.ArrayArgs) {
			return invalid("arrayLength", fmt.Sprintf("must be 0 or %d to match arrayArgs", len(d.ArrayArgs)))
		}
		if v.Limits.MaxArrayLength > 0 && len(d.ArrayArgs) > v.Limits.MaxArrayLength {
			return invalid("arrayArgs", fmt.Sprintf("must have <= %d entries", v.Limits.MaxArrayLength))
		}
		if err := checkArgs("arrayArgs", d.ArrayArgs); err != nil {
			return err
		}
	}
	if len(d.ParallelArgs) > 0 {
		if d.IsArray() {
			return invalid("parallelArgs", "cannot be combined with an array job")
		}
		if err := checkArgs("parallelArgs", d.ParallelArgs); err != nil {
			return err
		}
	}
	return nil
}

func checkArgs(field string, args []string) error {
	for i, a := range args {
		if strings.ContainsAny(a, "\r\n") {
			return invalid(field, fmt.Sprintf("entry %d must be a single line", i+1))
		}
	}
	return nil
}

func checkCount(field string, value, min, max int) error {
	if value < min {
		return invalid(field, fmt.Sprintf("must be >= %d", min))
	}
	if max > 0 && value > max {
		return invalid(field, fmt.Sprintf("must be <= %d", max))
	}
	return nil
}

func checkName(field, value string, rule CharsetRule) error {
	if value == "" {
		return invalid(field, "must not be empty")
	}
	if rule != nil && !rule.Allows(value) {
		return invalid(field, "must match "+rule.String())
	}
	return nil
}

func invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}
