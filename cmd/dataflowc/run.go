package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"

	"github.com/wbrown/janus-dataflow/datalog/query"
	"github.com/wbrown/janus-dataflow/datalog/runtime"
	"github.com/wbrown/janus-dataflow/datalog/topology"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	File    string
	Facts   string
	Retract string
	ID      string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run [query]",
		Short: "Run a query over a fact file on the local engine",
		Long: `Compile a query (or load a stored topology with --id), deploy it on the
local engine, insert the facts, optionally retract some of them, and print
the terminal's conflict set.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd.Context(), opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "read the query from a file")
	cmd.Flags().StringVar(&opts.Facts, "facts", "", "EDN file of [e a v] facts to insert")
	cmd.Flags().StringVar(&opts.Retract, "retract", "", "EDN file of facts to retract after inserting")
	cmd.Flags().StringVar(&opts.ID, "id", "", "run a stored topology instead of compiling")
	_ = cmd.MarkFlagRequired("facts")

	return cmd
}

func runRun(ctx context.Context, opts *RunOptions, args []string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}

	desc, err := loadTopology(opts, args, cmd)
	if err != nil {
		return err
	}

	facts, err := readFacts(opts.Facts)
	if err != nil {
		return err
	}
	var retractions []query.Tuple
	if opts.Retract != "" {
		if retractions, err = readFacts(opts.Retract); err != nil {
			return err
		}
	}

	engine := opts.config.Engine()
	engine.Handler = opts.handler(cmd)
	dep, err := engine.Start(ctx, desc)
	if err != nil {
		return err
	}
	defer dep.Close()

	if err := dep.InsertBatch(ctx, facts); err != nil {
		return err
	}
	for _, fact := range retractions {
		if err := dep.Retract(ctx, fact); err != nil {
			return err
		}
	}

	if desc.Terminal == nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "Topology has no terminal; nothing to show")
		return nil
	}
	_, err = io.WriteString(cmd.OutOrStdout(), formatRows(desc.Terminal.Variables, dep.Results()))
	return err
}

func loadTopology(opts *RunOptions, args []string, cmd *cobra.Command) (*topology.Descriptor, error) {
	if opts.ID == "" {
		result, err := compileQuery(opts.RootOptions, args, opts.File, cmd)
		if err != nil {
			return nil, err
		}
		writeDiagnostics(cmd.ErrOrStderr(), result.Diagnostics)
		return result.Topology, nil
	}

	if len(args) > 0 || opts.File != "" {
		return nil, fmt.Errorf("--id cannot be combined with a query")
	}
	store, err := opts.openCatalog()
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.Get(opts.ID)
}

// formatRows renders terminal rows as a markdown table with a count column.
func formatRows(columns []string, rows []runtime.Row) string {
	if len(rows) == 0 {
		return fmt.Sprintf("_Columns: %v_\n\n_No rows_\n", columns)
	}

	var sb strings.Builder
	alignment := make([]tw.Align, len(columns)+1)
	for i := range alignment {
		alignment[i] = tw.AlignNone
	}
	table := tablewriter.NewTable(&sb,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithAlignment(alignment),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)
	table.Header(append(append([]string{}, columns...), "count"))

	for _, row := range rows {
		cells := make([]string, 0, len(row.Values)+1)
		for _, v := range row.Values {
			cells = append(cells, formatValue(v))
		}
		cells = append(cells, fmt.Sprintf("%d", row.Count))
		table.Append(cells)
	}
	table.Render()

	sb.WriteString(fmt.Sprintf("\n_%d rows_\n", len(rows)))
	return sb.String()
}

func formatValue(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	s, err := query.FormatValue(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return s
}
