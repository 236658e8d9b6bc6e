package annotations

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// OutputFormatter formats events for human-readable display.
type OutputFormatter struct {
	useColor bool
	writer   io.Writer
}

// NewOutputFormatter creates a formatter with color support detection.
func NewOutputFormatter(w io.Writer) *OutputFormatter {
	if w == nil {
		w = os.Stdout
	}

	useColor := false
	if f, ok := w.(*os.File); ok {
		useColor = isatty.IsTerminal(f.Fd()) && !color.NoColor
	}

	return &OutputFormatter{
		useColor: useColor,
		writer:   w,
	}
}

// Handle prints events as they occur
func (f *OutputFormatter) Handle(event Event) {
	output := f.Format(event)
	if output != "" {
		fmt.Fprintln(f.writer, output)
	}
}

// Format converts an event to a human-readable string.
func (f *OutputFormatter) Format(event Event) string {
	latency := f.formatLatency(event.Latency)

	switch event.Name {
	case CompileBegin:
		return fmt.Sprintf("%s %s Compiling %s",
			latency,
			f.colorize("===", color.FgYellow),
			truncateQuery(str(event.Data["query"])))

	case BindingsAssigned:
		return fmt.Sprintf("%s Bindings %v", latency, event.Data["bindings"])

	case FilterCreated:
		return fmt.Sprintf("%s %s %s binds %v",
			latency,
			f.colorize("+filter", color.FgCyan),
			event.Data["name"],
			event.Data["vars"])

	case FilterReused:
		return fmt.Sprintf("%s %s %s binds %v",
			latency,
			f.colorize("=filter", color.FgBlue),
			event.Data["name"],
			event.Data["vars"])

	case JoinCreated, JoinReused, JoinCross:
		marker := f.colorize("+join", color.FgMagenta)
		switch event.Name {
		case JoinReused:
			marker = f.colorize("=join", color.FgBlue)
		case JoinCross:
			marker = f.colorize("⚠️ cross", color.FgYellow)
		}
		return fmt.Sprintf("%s %s %v ⋈ %v on %v",
			latency,
			marker,
			event.Data["left.vars"],
			event.Data["right.vars"],
			event.Data["keys"])

	case ClauseSkipped:
		return fmt.Sprintf("%s %s clause %v %s: %v",
			latency,
			f.colorize("✗", color.FgRed),
			event.Data["clause.index"],
			event.Data["clause"],
			event.Data["error"])

	case TerminalMissing:
		return fmt.Sprintf("%s %s no terminal: %v",
			latency,
			f.colorize("⚠️", color.FgYellow),
			event.Data["reason"])

	case TopologyWired:
		return fmt.Sprintf("%s Wired %s and %s",
			latency,
			f.colorizeCount("filters", toInt(event.Data["filters"])),
			f.colorizeCount("joins", toInt(event.Data["joins"])))

	case CompileComplete:
		if success, _ := event.Data["success"].(bool); !success {
			return fmt.Sprintf("%s %s Compilation failed: %v",
				latency,
				f.colorize("✗", color.FgRed),
				event.Data["error"])
		}
		return fmt.Sprintf("%s %s Compiled %s in %d join steps with %s",
			latency,
			f.colorize("===", color.FgGreen),
			event.Data["id"],
			toInt(event.Data["join.steps"]),
			f.colorizeCount("diagnostics", toInt(event.Data["diagnostics"])))

	case CompileCacheHit:
		return fmt.Sprintf("%s Cache hit for %s", latency, event.Data["id"])

	case RuntimeDeployed:
		return fmt.Sprintf("%s Deployed %s with %d instances per operator",
			latency, event.Data["id"], toInt(event.Data["parallelism"]))

	case RuntimeDelta:
		return fmt.Sprintf("%s Delta %v weight %d → %s",
			latency,
			event.Data["tuple"],
			toInt(event.Data["weight"]),
			f.colorizeCount("results", toInt(event.Data["results"])))

	case RuntimeClosed:
		return fmt.Sprintf("%s Closed %s", latency, event.Data["id"])

	case ErrorContract:
		return fmt.Sprintf("%s %s %v", latency, f.colorize("✗", color.FgRed), event.Data["error"])

	default:
		return fmt.Sprintf("%s %s %v", latency, event.Name, event.Data)
	}
}

// formatLatency formats a duration with appropriate units and color
func (f *OutputFormatter) formatLatency(d time.Duration) string {
	var s string
	switch {
	case d < time.Microsecond:
		s = fmt.Sprintf("[%dns]", d.Nanoseconds())
	case d < time.Millisecond:
		s = fmt.Sprintf("[%.1fµs]", float64(d.Nanoseconds())/1e3)
	default:
		s = fmt.Sprintf("[%.2fms]", float64(d.Nanoseconds())/1e6)
	}

	if !f.useColor {
		return s
	}
	switch {
	case d < time.Millisecond:
		return color.GreenString(s)
	case d < 10*time.Millisecond:
		return color.YellowString(s)
	default:
		return color.RedString(s)
	}
}

func (f *OutputFormatter) colorizeCount(label string, count int) string {
	text := fmt.Sprintf("%d %s", count, label)
	if !f.useColor {
		return text
	}
	switch label {
	case "filters":
		return color.CyanString(text)
	case "joins":
		return color.MagentaString(text)
	case "diagnostics":
		if count > 0 {
			return color.RedString(text)
		}
		return text
	default:
		return text
	}
}

// colorize applies color if enabled.
func (f *OutputFormatter) colorize(text string, attrs ...color.Attribute) string {
	if !f.useColor {
		return text
	}
	return color.New(attrs...).Sprint(text)
}

// truncateQuery shortens long queries for display.
func truncateQuery(query string) string {
	query = strings.Join(strings.Fields(query), " ")

	const maxLen = 80
	if len(query) <= maxLen {
		return query
	}
	return query[:maxLen-3] + "..."
}

func str(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func toInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	default:
		return 0
	}
}
