package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tbourn/go-translingo-backend/internal/app"
	"github.com/tbourn/go-translingo-backend/internal/domain"
	"github.com/tbourn/go-translingo-backend/internal/services"
)

func newTranslateCmd(r *runner) *cobra.Command {
	var from, to string
	var noSave bool
	cmd := &cobra.Command{
		Use:   "translate <text>",
		Short: "Translate text once and save it to history",
		Long: `Translate text between two catalog languages. Without --from/--to the
current language selection is used. Non-blank input is saved to history.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := r.open(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			src, tgt, err := resolvePair(ctx, a, from, to)
			if err != nil {
				return err
			}
			text := strings.Join(args, " ")
			out, err := translateOnce(ctx, a, text, src, tgt, !noSave)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "source language code")
	cmd.Flags().StringVar(&to, "to", "", "target language code")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "do not record the translation in history")
	return cmd
}

// resolvePair picks the codes from the flags, falling back to the stored
// selection.
func resolvePair(ctx context.Context, a *app.App, from, to string) (string, string, error) {
	sel, err := a.Languages.Selection(ctx)
	if err != nil {
		return "", "", err
	}
	src, err := pick(a, from, sel.Source, services.SlotSource)
	if err != nil {
		return "", "", err
	}
	tgt, err := pick(a, to, sel.Target, services.SlotTarget)
	if err != nil {
		return "", "", err
	}
	return src, tgt, nil
}

func pick(a *app.App, code string, stored *domain.Language, slot services.Slot) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		if stored == nil {
			return "", fmt.Errorf("%s language not set: pass --%s or run `translingo languages set %s <code>`",
				slot, flagFor(slot), slot)
		}
		return stored.Code, nil
	}
	l, ok := a.Catalog.Resolve(code)
	if !ok {
		return "", fmt.Errorf("%w: %q", services.ErrUnknownLanguage, code)
	}
	return l.Code, nil
}

func flagFor(slot services.Slot) string {
	if slot == services.SlotSource {
		return "from"
	}
	return "to"
}

// translateOnce makes the pair's model available, translates, and saves
// the result when save is set and the input is not blank.
func translateOnce(ctx context.Context, a *app.App, text, src, tgt string, save bool) (string, error) {
	tr := a.Engine.Translator(src, tgt)
	if err := tr.EnsureModel(ctx); err != nil {
		return "", fmt.Errorf("model %s->%s: %w", src, tgt, err)
	}
	out, err := tr.Translate(ctx, text)
	if err != nil {
		return "", fmt.Errorf("translate: %w", err)
	}
	if !save {
		return out, nil
	}

	rec := domain.NewHistoryRecord(src, tgt, text, out, time.Now())
	switch err := a.History.Save(ctx, rec); {
	case err == nil, errors.Is(err, services.ErrBlankText), errors.Is(err, services.ErrUndetermined):
	default:
		return out, fmt.Errorf("save history: %w", err)
	}
	return out, nil
}
