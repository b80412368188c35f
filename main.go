package main

import (
	"fmt"
	"os"

	"github.com/cs-au-dk/jstar/analysis/cfg"
	"github.com/cs-au-dk/jstar/analysis/monitoring"
	"github.com/cs-au-dk/jstar/utils"

	log "github.com/sirupsen/logrus"
)

var opts = utils.Opts()

func main() {
	utils.ParseArgs()

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if opts.Verbose() {
		log.SetLevel(log.DebugLevel)
	}

	conf, err := makeConfig()
	if err != nil {
		log.Fatalln(err)
	}
	if conf.Verbose {
		log.SetLevel(log.DebugLevel)
	}

	if opts.File() == "" {
		log.Fatalln("no file to analyze; use -file")
	}
	src, err := os.ReadFile(opts.File())
	if err != nil {
		log.Fatalln(err)
	}

	fg, err := cfg.BuildSource(opts.File(), string(src))
	if err != nil {
		log.Fatalln(err)
	}
	log.WithField("functions", len(fg.Functions())).Debug("flow graph built")

	p := newPipeline(conf, fg)

	switch opts.Task() {
	case "cfg-to-dot":
		if err := taskCfgToDot(fg); err != nil {
			log.Fatalln(err)
		}

	case "callgraph-to-dot":
		solver, err := p.solve()
		if err != nil {
			log.Fatalln(err)
		}
		if err := taskCallGraphToDot(solver, conf.FullCallGraph); err != nil {
			log.Fatalln(err)
		}

	case "analyze":
		solver, err := p.solve()
		if err != nil {
			log.Fatalln(err)
		}
		msgs := solver.Messages()
		fmt.Println(monitoring.Format(msgs))
		p.reportMetrics(solver)
		if exitCodeFor(msgs) != 0 {
			os.Exit(exitCodeFor(msgs))
		}
	}
}

// exitCodeFor makes definite errors visible to scripts driving the
// analyzer.
func exitCodeFor(msgs []monitoring.Message) int {
	for _, msg := range msgs {
		if msg.Severity == monitoring.HIGH {
			return 1
		}
	}
	return 0
}
