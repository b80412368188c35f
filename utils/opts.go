package utils

import (
	"flag"
	"fmt"
	"os"
	"strings"
)

type options struct {
	file            string
	config          string
	task            string
	contextPolicy   string
	callStringBound uint
	noColorize      bool
	verbose         bool
	fullCg          bool
}

var opts = &options{}

var tasks = []struct{ flag, explanation string }{{
	"analyze",
	"Perform abstract interpretation and report diagnostic messages",
}, {
	"callgraph-to-dot",
	"Perform abstract interpretation and emit the discovered call graph in dot format",
}, {
	"cfg-to-dot",
	"Emit the flow graph in dot format without analyzing",
}}

func init() {
	taskDoc := "Task to perform. One of:\n"
	for _, t := range tasks {
		taskDoc += fmt.Sprintf("  %s: %s\n", t.flag, t.explanation)
	}

	flag.StringVar(&opts.file, "file", "", "JavaScript file to analyze")
	flag.StringVar(&opts.config, "config", "", "Optional yaml configuration file")
	flag.StringVar(&opts.task, "task", "analyze", taskDoc)
	flag.StringVar(&opts.contextPolicy, "context", "1cfa",
		"Context sensitivity policy (insensitive, 1cfa, kcfa)")
	flag.UintVar(&opts.callStringBound, "k", 1, "Call string bound for the kcfa policy")
	flag.BoolVar(&opts.noColorize, "no-colorize", false, "Disable colorized output")
	flag.BoolVar(&opts.verbose, "verbose", false, "Verbose logging")
	flag.BoolVar(&opts.fullCg, "full-cg", false,
		"Export one call graph node per (function, context) pair instead of one per function")
}

// ParseArgs parses the command line and validates the chosen task.
func ParseArgs() {
	flag.Parse()
	for _, t := range tasks {
		if t.flag == opts.task {
			return
		}
	}
	fmt.Printf("unknown task %q\n\n", opts.task)
	flag.Usage()
	os.Exit(2)
}

// Opts exposes the parsed command line options.
func Opts() *options {
	return opts
}

func (o *options) File() string          { return o.file }
func (o *options) Config() string        { return o.config }
func (o *options) Task() string          { return o.task }
func (o *options) ContextPolicy() string { return o.contextPolicy }
func (o *options) CallStringBound() int  { return int(o.callStringBound) }
func (o *options) Verbose() bool         { return o.verbose }
func (o *options) FullCg() bool          { return o.fullCg }

// CanColorize wraps a color.SprintFunc such that colorization honors the
// no-colorize flag.
func CanColorize(col func(...interface{}) string) func(...interface{}) string {
	if opts.noColorize {
		return func(is ...interface{}) string {
			return fmt.Sprintf(strings.Repeat("%s", len(is)), is...)
		}
	}
	return col
}

func VerbosePrint(format string, a ...interface{}) (n int, err error) {
	if Opts().Verbose() {
		return fmt.Printf(format, a...)
	}
	return 0, nil
}
