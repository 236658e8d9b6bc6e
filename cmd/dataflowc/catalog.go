package main

import (
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"
)

// NewCatalogCommand creates the catalog command group.
func NewCatalogCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage stored topologies",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored topologies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := rootOpts.openCatalog()
			if err != nil {
				return err
			}
			defer store.Close()

			summaries, err := store.List()
			if err != nil {
				return err
			}
			if len(summaries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "_No topologies_")
				return nil
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
			table.Header([]string{"id", "filters", "joins", "terminal", "query"})
			for _, s := range summaries {
				table.Append([]string{
					s.ID,
					fmt.Sprintf("%d", s.Filters),
					fmt.Sprintf("%d", s.Joins),
					fmt.Sprintf("%t", s.Terminal),
					strings.Join(strings.Fields(s.Query), " "),
				})
			}
			table.Render()
			fmt.Fprint(cmd.OutOrStdout(), sb.String())
			return nil
		},
	})

	var format string
	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a stored topology",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(format) {
				return fmt.Errorf("invalid format %q: must be one of %v", format, ValidFormats)
			}
			store, err := rootOpts.openCatalog()
			if err != nil {
				return err
			}
			defer store.Close()

			d, err := store.Get(args[0])
			if err != nil {
				return err
			}
			return writeDescriptor(cmd.OutOrStdout(), d, format)
		},
	}
	show.Flags().StringVarP(&format, "output", "o", "yaml", "output format (text|table|yaml|json|dot|mermaid)")
	cmd.AddCommand(show)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Remove a stored topology",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := rootOpts.openCatalog()
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	})

	return cmd
}
