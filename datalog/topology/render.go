package topology

import (
	"fmt"
	"strings"

	"github.com/emicklei/dot"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
)

// String returns a human-readable representation of the topology
func (d *Descriptor) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Topology %s:\n", d.ID))
	sb.WriteString(fmt.Sprintf("  Input: %s\n", d.Input))
	sb.WriteString(fmt.Sprintf("  Bindings: %v\n", d.Bindings))
	sb.WriteString(fmt.Sprintf("  Operators: %d\n", len(d.Operators)))

	for i := range d.Operators {
		op := &d.Operators[i]
		sb.WriteString(fmt.Sprintf("\nOperator %d: %s\n", i+1, op.Name))
		sb.WriteString(op.String())
	}

	sb.WriteString("\n")
	switch {
	case d.Terminal != nil:
		t := d.Terminal
		sb.WriteString(fmt.Sprintf("Terminal %s <- %s\n", t.Name, t.Source))
		sb.WriteString(fmt.Sprintf("  Project: %v as %v\n", t.Projection, t.Variables))
		if t.Feedback != "" {
			sb.WriteString(fmt.Sprintf("  Feedback: %s\n", t.Feedback))
		}
	case d.Root != "":
		sb.WriteString(fmt.Sprintf("Root %s (no terminal)\n", d.Root))
	default:
		sb.WriteString("No root\n")
	}
	return sb.String()
}

// String returns the body of an operator listing
func (o *Operator) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("  Kind: %s\n", o.Kind))
	sb.WriteString(fmt.Sprintf("  Outputs: %v\n", o.Outputs))
	if j := o.Join; j != nil {
		sb.WriteString(fmt.Sprintf("  Match: left=%v right=%v\n", j.LeftMatch, j.RightMatch))
		if j.IsCross() {
			sb.WriteString("  Keys: none (cross join)\n")
		} else {
			sb.WriteString(fmt.Sprintf("  Keys: %v\n", j.Keys))
		}
	}
	for _, up := range o.Upstreams {
		sb.WriteString(fmt.Sprintf("  Upstream: %s (%s)\n", up.Source, up.Grouping))
	}
	return sb.String()
}

// Table renders the operators as a markdown table
func (d *Descriptor) Table() string {
	if len(d.Operators) == 0 {
		return "_Empty topology_"
	}

	var sb strings.Builder
	alignment := make([]tw.Align, 5)
	for i := range alignment {
		alignment[i] = tw.AlignNone
	}
	table := tablewriter.NewTable(&sb,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithAlignment(alignment),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)
	table.Header([]string{"#", "operator", "kind", "outputs", "upstreams"})

	for i := range d.Operators {
		op := &d.Operators[i]
		ups := make([]string, len(op.Upstreams))
		for j, up := range op.Upstreams {
			ups[j] = fmt.Sprintf("%s %s", d.shortName(up.Source), up.Grouping)
		}
		table.Append([]string{
			fmt.Sprintf("%d", i+1),
			op.Name,
			op.Kind.String(),
			fmt.Sprintf("%v", op.Outputs),
			strings.Join(ups, "; "),
		})
	}
	table.Render()

	sb.WriteString(fmt.Sprintf("\n_%d operators_\n", len(d.Operators)))
	return sb.String()
}

// shortName refers to operators by position so join rows stay readable.
func (d *Descriptor) shortName(source string) string {
	for i := range d.Operators {
		if d.Operators[i].Name == source {
			return fmt.Sprintf("#%d", i+1)
		}
	}
	return source
}

// nodeStyle gives a graph node its look in both DOT and Mermaid output.
// Mermaid reads "shape" as one of the dot.MermaidShape values and writes
// "style" verbatim as CSS.
type nodeStyle struct {
	shape   string
	mermaid interface{}
	style   string
	fill    string
}

var (
	feedStyle     = nodeStyle{"ellipse", dot.MermaidShapeStadium, "filled", "lightgreen"}
	filterStyle   = nodeStyle{"box", dot.MermaidShapeRound, "filled,rounded", "lightblue"}
	joinStyle     = nodeStyle{"box", dot.MermaidShapeSubroutine, "filled,rounded", "lightyellow"}
	terminalStyle = nodeStyle{"box", dot.MermaidShapeCylinder, "filled", "lightcyan"}
)

func (s nodeStyle) apply(n dot.Node, mermaid bool) dot.Node {
	if mermaid {
		return n.Attr("shape", s.mermaid).Attr("style", "fill:"+s.fill)
	}
	return n.Attr("shape", s.shape).Attr("style", s.style).Attr("fillcolor", s.fill)
}

// Graph builds a dot graph of the topology: feeds, operators, terminal.
func (d *Descriptor) Graph() *dot.Graph {
	return d.graph(false)
}

func (d *Descriptor) graph(mermaid bool) *dot.Graph {
	graph := dot.NewGraph(dot.Directed)
	graph.Attr("rankdir", "LR")
	graph.Attr("label", d.ID)
	graph.Attr("labelloc", "t")

	nodes := make(map[string]dot.Node, len(d.Operators)+2)
	feed := func(name string) dot.Node {
		if n, ok := nodes[name]; ok {
			return n
		}
		n := feedStyle.apply(graph.Node(name).Attr("label", name), mermaid)
		nodes[name] = n
		return n
	}

	for i := range d.Operators {
		op := &d.Operators[i]
		style := filterStyle
		if op.Kind == KindJoin {
			style = joinStyle
		}
		n := graph.Node(op.Name).
			Attr("label", fmt.Sprintf("#%d %s\n%v", i+1, op.Kind, op.Outputs)).
			Attr("tooltip", op.Name)
		nodes[op.Name] = style.apply(n, mermaid)
	}

	for i := range d.Operators {
		op := &d.Operators[i]
		for side, up := range op.Upstreams {
			from, ok := nodes[up.Source]
			if !ok {
				from = feed(up.Source)
			}
			edge := graph.Edge(from, nodes[op.Name]).Attr("label", up.Grouping.String())
			if op.Kind == KindJoin {
				edge.Attr("taillabel", Side(side).String())
			}
		}
	}

	if t := d.Terminal; t != nil {
		term := graph.Node(t.Name).Attr("label", fmt.Sprintf("%s\n%v", t.Name, t.Variables))
		terminalStyle.apply(term, mermaid)
		graph.Edge(nodes[t.Source], term).Attr("label", fmt.Sprintf("project%v", t.Projection))
		if t.Feedback != "" {
			edge := graph.Edge(term, feed(t.Feedback))
			if !mermaid {
				edge.Attr("style", "dashed")
			}
		}
	}
	return graph
}

// DOT renders the topology as a Graphviz digraph
func (d *Descriptor) DOT() string {
	return d.Graph().String()
}

// Mermaid renders the topology as a Mermaid flowchart in a markdown block
func (d *Descriptor) Mermaid() string {
	return fmt.Sprintf("```mermaid\n%s```\n", dot.MermaidFlowchart(d.graph(true), dot.MermaidLeftToRight))
}
