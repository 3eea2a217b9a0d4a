package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tbourn/go-translingo-backend/internal/services"
)

func newLanguagesCmd(r *runner) *cobra.Command {
	var query string
	cmd := &cobra.Command{
		Use:   "languages",
		Short: "List catalog languages and the current selection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := r.open(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			sel, err := a.Languages.Selection(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "CODE\tNAME\tMODEL\t")
			for _, l := range a.Languages.Languages(ctx, query) {
				mark := ""
				switch {
				case sel.Source != nil && sel.Source.Code == l.Code:
					mark = "source"
				case sel.Target != nil && sel.Target.Code == l.Code:
					mark = "target"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", l.Code, l.Name, l.ModelState, mark)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "filter by name or code")

	cmd.AddCommand(
		&cobra.Command{
			Use:       "set <slot> <code>",
			Short:     "Select the source or target language",
			Args:      cobra.ExactArgs(2),
			ValidArgs: []string{string(services.SlotSource), string(services.SlotTarget)},
			RunE: func(cmd *cobra.Command, args []string) error {
				slot, err := services.ParseSlot(args[0])
				if err != nil {
					return err
				}
				ctx := cmd.Context()
				a, err := r.open(ctx, cmd)
				if err != nil {
					return err
				}
				defer a.Close()

				sel, err := a.Languages.Select(ctx, slot, args[1], nil)
				if err != nil {
					return err
				}
				return writeSelection(cmd.OutOrStdout(), sel)
			},
		},
		&cobra.Command{
			Use:   "swap",
			Short: "Swap the source and target languages",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				ctx := cmd.Context()
				a, err := r.open(ctx, cmd)
				if err != nil {
					return err
				}
				defer a.Close()

				sel, err := a.Languages.Swap(ctx)
				if err != nil {
					return err
				}
				return writeSelection(cmd.OutOrStdout(), sel)
			},
		},
	)
	return cmd
}

func writeSelection(out io.Writer, sel services.Selection) error {
	src, tgt := "(unset)", "(unset)"
	if sel.Source != nil {
		src = sel.Source.Name + " (" + sel.Source.Code + ")"
	}
	if sel.Target != nil {
		tgt = sel.Target.Name + " (" + sel.Target.Code + ")"
	}
	_, err := fmt.Fprintf(out, "source: %s\ntarget: %s\n", src, tgt)
	return err
}
