package cli

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tbourn/go-translingo-backend/internal/domain"
	"github.com/tbourn/go-translingo-backend/internal/services"
	"github.com/tbourn/go-translingo-backend/internal/utils"
)

func newHistoryCmd(r *runner) *cobra.Command {
	var page, pageSize int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List saved translations grouped by day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := r.open(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			page, pageSize = utils.ClampPage(page, pageSize)
			items, total, err := a.History.ListPage(ctx, page, pageSize)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if total == 0 {
				fmt.Fprintln(out, "No translations yet.")
				return nil
			}
			for _, g := range services.GroupHistory(items, time.Now()) {
				fmt.Fprintln(out, g.Header)
				if err := writeRecords(out, g.Records); err != nil {
					return err
				}
			}
			if pages := utils.TotalPages(total, pageSize); pages > 1 {
				fmt.Fprintf(out, "page %d of %d (%d records)\n", page, pages, total)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&pageSize, "page-size", utils.DefaultPageSize, "records per page")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "favorite <id>",
			Short: "Toggle the favorite flag of a record",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseHistoryID(args[0])
				if err != nil {
					return err
				}
				ctx := cmd.Context()
				a, err := r.open(ctx, cmd)
				if err != nil {
					return err
				}
				defer a.Close()

				rec, err := a.History.ToggleFavorite(ctx, id)
				if err != nil {
					return err
				}
				state := "removed from"
				if rec.IsFavorite {
					state = "added to"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d %s favorites\n", rec.ID, state)
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete <id>",
			Short: "Delete a record",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseHistoryID(args[0])
				if err != nil {
					return err
				}
				ctx := cmd.Context()
				a, err := r.open(ctx, cmd)
				if err != nil {
					return err
				}
				defer a.Close()

				if err := a.History.DeleteByID(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d\n", id)
				return nil
			},
		},
	)
	return cmd
}

func newFavoritesCmd(r *runner) *cobra.Command {
	var query string
	cmd := &cobra.Command{
		Use:   "favorites",
		Short: "List favorite translations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := r.open(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			favs, err := a.History.Favorites(ctx, query)
			if err != nil {
				return err
			}
			if len(favs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No favorites.")
				return nil
			}
			return writeRecords(cmd.OutOrStdout(), favs)
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "only records containing this text")
	return cmd
}

func parseHistoryID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func writeRecords(out io.Writer, recs []domain.HistoryRecord) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, rec := range recs {
		star := " "
		if rec.IsFavorite {
			star = "*"
		}
		fmt.Fprintf(w, "  %s\t%d\t%s->%s\t%s\t%s\n",
			star, rec.ID, rec.SourceLanguageCode, rec.TargetLanguageCode,
			clip(rec.OriginalText, 40), clip(rec.TranslatedText, 40))
	}
	return w.Flush()
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
