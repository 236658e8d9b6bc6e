package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/wbrown/janus-dataflow/datalog/compiler"
	"github.com/wbrown/janus-dataflow/datalog/topology"
)

// ValidFormats lists the descriptor output formats.
var ValidFormats = []string{"text", "table", "yaml", "json", "dot", "mermaid"}

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	File   string
	Format string
	Store  bool
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile [query]",
		Short: "Compile a query and print its topology",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return runCompile(opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "read the query from a file")
	cmd.Flags().StringVarP(&opts.Format, "output", "o", "text", "output format (text|table|yaml|json|dot|mermaid)")
	cmd.Flags().BoolVar(&opts.Store, "store", false, "save the topology in the catalog")

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func runCompile(opts *CompileOptions, args []string, cmd *cobra.Command) error {
	result, err := compileQuery(opts.RootOptions, args, opts.File, cmd)
	if err != nil {
		return err
	}
	writeDiagnostics(cmd.ErrOrStderr(), result.Diagnostics)

	if opts.Store {
		store, err := opts.openCatalog()
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.Put(result.Topology); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Stored %s\n", result.Topology.ID)
	}

	return writeDescriptor(cmd.OutOrStdout(), result.Topology, opts.Format)
}

// compileQuery parses and compiles a query with the configured options.
func compileQuery(opts *RootOptions, args []string, file string, cmd *cobra.Command) (*compiler.Result, error) {
	p, err := readQuery(args, file)
	if err != nil {
		return nil, err
	}
	copts, err := opts.config.CompilerOptions()
	if err != nil {
		return nil, err
	}
	copts.Handler = opts.handler(cmd)
	return compiler.New(copts).Compile(p)
}

func writeDiagnostics(w io.Writer, diags []compiler.Diagnostic) {
	for _, d := range diags {
		c := color.New(color.FgYellow)
		if d.Severity == compiler.SeverityError {
			c = color.New(color.FgRed)
		}
		c.Fprintln(w, d.String())
	}
}

func writeDescriptor(w io.Writer, d *topology.Descriptor, format string) error {
	switch format {
	case "table":
		_, err := io.WriteString(w, d.Table())
		return err
	case "yaml":
		data, err := d.EncodeYAML()
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	case "json":
		data, err := d.EncodeJSON()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case "dot":
		_, err := fmt.Fprintln(w, d.DOT())
		return err
	case "mermaid":
		_, err := fmt.Fprintln(w, d.Mermaid())
		return err
	default:
		_, err := fmt.Fprintln(w, d.String())
		return err
	}
}
