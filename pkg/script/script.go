// Package script turns directive sets into batch scripts for a particular scheduler.
package script

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"mini-hpc-submit/pkg/job"
)

// Dialect renders directives the way one scheduler expects them.
type Dialect interface {
	// Name is the platform name used in configuration, e.g. "slurm".
	Name() string
	// Header returns the directive lines, without the shebang.
	Header(directives job.DirectiveSet) []string
	// OutputPattern is the output file path for jobs writing into dir.
	OutputPattern(dir string, array bool) string
	// SubmitCommand is the command and leading arguments used to submit a script.
	SubmitCommand() []string
	// Extension is the script file extension, without the dot.
	Extension() string
	// ArrayIndexVar is the shell variable holding the array task index.
	ArrayIndexVar() string
}

var dialects = map[string]Dialect{
	"slurm": Slurm{},
	"pbs":   PBS{},
}

// Lookup returns the dialect registered under name.
func Lookup(name string) (Dialect, error) {
	d, ok := dialects[strings.ToLower(name)]
	if !ok {
		return nil, errors.Errorf("platform %s not recognized; must be one of [slurm, pbs]", name)
	}
	return d, nil
}

// Build assembles a complete script: shebang, directives, setup lines and body.
func Build(dialect Dialect, directives job.DirectiveSet, setup, body string) string {
	var b strings.Builder
	b.WriteString("#!/bin/bash\n")
	for _, line := range dialect.Header(directives) {
		b.WriteString(line)
		b.WriteString("\n")
	}
	if setup != "" {
		b.WriteString(strings.TrimRight(setup, "\n"))
		b.WriteString("\n")
	}
	b.WriteString(strings.TrimRight(body, "\n"))
	b.WriteString("\n")
	return b.String()
}

// Body is the part of the script that runs the job: the dispatch target, one case per
// array task for arrayArgs, or the parallel runs for parallelArgs.
func Body(dialect Dialect, d job.JobDescriptor) string {
	if len(d.ArrayArgs) > 0 {
		return ArrayBody(dialect, withArgs(d.DispatchTarget, d.ArrayArgs))
	}
	return Command(d)
}

// Command is the shell command of a job that is not an array job.
func Command(d job.JobDescriptor) string {
	if len(d.ParallelArgs) > 0 {
		return CombineParallel(withArgs(d.DispatchTarget, d.ParallelArgs))
	}
	return d.DispatchTarget
}

func withArgs(target string, args []string) []string {
	commands := make([]string, len(args))
	for i, a := range args {
		commands[i] = strings.TrimSpace(target + " " + a)
	}
	return commands
}

// ArrayBody runs the i-th command (1-based) in the i-th array task.
func ArrayBody(dialect Dialect, commands []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "case %s in\n", dialect.ArrayIndexVar())
	for i, c := range commands {
		fmt.Fprintf(&b, "%d)\n%s\n;;\n", i+1, c)
	}
	b.WriteString("esac")
	return b.String()
}

// CombineParallel runs commands in the background and waits for all of them.
func CombineParallel(commands []string) string {
	return strings.Join(append(append([]string{}, commands...), "wait"), " & ")
}
