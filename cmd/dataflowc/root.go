package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wbrown/janus-dataflow/datalog/annotations"
	"github.com/wbrown/janus-dataflow/datalog/catalog"
	"github.com/wbrown/janus-dataflow/datalog/config"
	"github.com/wbrown/janus-dataflow/datalog/parser"
	"github.com/wbrown/janus-dataflow/datalog/query"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath  string
	CatalogPath string
	Verbose     bool

	config *config.Config
}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "dataflowc",
		Short: "Compile graph-pattern queries into dataflow topologies",
		Long: `dataflowc compiles conjunctive graph-pattern queries into networks of
filter and join operators feeding a conflict-set terminal.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return err
			}
			if opts.CatalogPath != "" {
				cfg.Catalog.Path = opts.CatalogPath
			}
			opts.config = cfg
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "dataflowc.toml", "config file")
	cmd.PersistentFlags().StringVar(&opts.CatalogPath, "catalog", "", "catalog directory (overrides [catalog] path)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "show compiler and runtime events")

	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewCatalogCommand(opts))

	return cmd
}

// handler returns an event handler writing to stderr in verbose mode.
func (o *RootOptions) handler(cmd *cobra.Command) annotations.Handler {
	if !o.Verbose {
		return nil
	}
	return annotations.NewOutputFormatter(cmd.ErrOrStderr()).Handle
}

// openCatalog opens the configured catalog. Commands that persist state need
// a path; an in-memory catalog would be lost on exit.
func (o *RootOptions) openCatalog() (*catalog.Store, error) {
	if o.config.Catalog.Path == "" {
		return nil, fmt.Errorf("no catalog path: set [catalog] path or pass --catalog")
	}
	return catalog.Open(o.config.Catalog.Path)
}

// readQuery takes the query from the first argument, or from file when set.
func readQuery(args []string, file string) (*query.Pattern, error) {
	var text string
	switch {
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		text = string(data)
	case len(args) > 0:
		text = args[0]
	default:
		return nil, fmt.Errorf("no query: pass it as an argument or with --file")
	}
	return parser.ParseQuery(text)
}

func readFacts(path string) ([]query.Tuple, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	facts, err := parser.ParseFacts(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return facts, nil
}
