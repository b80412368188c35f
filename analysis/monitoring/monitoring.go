// Package monitoring collects the diagnostic messages the analysis
// emits while solving: type coercion warnings, calls to non-functions,
// syntax errors in dynamically constructed code, and the like.
package monitoring

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cs-au-dk/jstar/analysis/cfg"

	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
)

// Severity ranks messages. HIGH marks definite errors, MEDIUM likely
// problems, LOW precision or style remarks.
type Severity int

const (
	LOW Severity = iota
	MEDIUM
	HIGH
)

func (s Severity) String() string {
	switch s {
	case LOW:
		return "LOW"
	case MEDIUM:
		return "MEDIUM"
	case HIGH:
		return "HIGH"
	}
	return "?"
}

// A Message is one diagnostic, attached to the node it concerns.
// Messages are deduplicated: re-reporting the same text at the same
// node during later fixpoint iterations is a no-op.
type Message struct {
	Node     cfg.Node
	Severity Severity
	Text     string
}

// Statistics summarizes one completed solver run.
type Statistics struct {
	Steps           int
	Locations       int
	CallEdges       int
	EvalCacheHits   int
	EvalCacheMisses int
}

// A Monitor receives diagnostics during solving and the run summary
// when solving completes. It never influences the analysis result.
type Monitor interface {
	Report(node cfg.Node, severity Severity, format string, args ...interface{})
	Messages() []Message
	RecordStatistics(Statistics)
	Statistics() Statistics
}

type monitor struct {
	messages []Message
	seen     map[messageKey]bool
	stats    Statistics
}

type messageKey struct {
	node cfg.Node
	text string
}

// NewMonitor returns the default deduplicating monitor.
func NewMonitor() Monitor {
	return &monitor{seen: map[messageKey]bool{}}
}

func (m *monitor) Report(node cfg.Node, severity Severity, format string, args ...interface{}) {
	text := fmt.Sprintf(format, args...)
	key := messageKey{node, text}
	if m.seen[key] {
		return
	}
	m.seen[key] = true
	m.messages = append(m.messages, Message{Node: node, Severity: severity, Text: text})
	log.WithField("severity", severity.String()).Debug(text)
}

// RecordStatistics stores the run summary.
func (m *monitor) RecordStatistics(stats Statistics) { m.stats = stats }

// Statistics returns the recorded run summary; zero before solving
// completed.
func (m *monitor) Statistics() Statistics { return m.stats }

// Messages returns the collected diagnostics ordered by severity
// (highest first), then text.
func (m *monitor) Messages() []Message {
	msgs := make([]Message, len(m.messages))
	copy(msgs, m.messages)
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].Severity != msgs[j].Severity {
			return msgs[i].Severity > msgs[j].Severity
		}
		return msgs[i].Text < msgs[j].Text
	})
	return msgs
}

var severityColors = map[Severity]func(...interface{}) string{
	LOW:    color.New(color.FgHiBlack).SprintFunc(),
	MEDIUM: color.New(color.FgYellow).SprintFunc(),
	HIGH:   color.New(color.FgRed).SprintFunc(),
}

// Format renders the diagnostics for terminal output.
func Format(msgs []Message) string {
	if len(msgs) == 0 {
		return "No messages."
	}
	lines := make([]string, len(msgs))
	for i, msg := range msgs {
		loc := "?"
		if msg.Node != nil && msg.Node.Function() != nil {
			loc = msg.Node.String()
		}
		lines[i] = fmt.Sprintf("[%s] %s (at %s)",
			severityColors[msg.Severity](msg.Severity), msg.Text, loc)
	}
	return strings.Join(lines, "\n")
}
