package main

import (
	"context"
	"fmt"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lead-finder/internal/finder"
	"github.com/sells-group/lead-finder/internal/model"
	"github.com/sells-group/lead-finder/internal/store"
)

var reprocessCmd = &cobra.Command{
	Use:   "reprocess <id|latest> [url...]",
	Short: "Re-enrich leads of a saved search",
	Long: "Sends leads of a saved search back to the backend for enrichment and merges the results. " +
		"With no URLs every lead is reprocessed, bounded by reprocess.concurrency and reprocess.rate_per_sec.",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		s, err := resolveSearch(ctx, st, args[0])
		if err != nil {
			return err
		}

		b, err := newBackend(cfg.API.BaseURL, false)
		if err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString("format")
		return runReprocess(ctx, b, st, s, args[1:], searchOptions{format: format}, cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

// runReprocess loads s into a controller, re-enriches urls (all leads when
// empty), saves the merged set and prints it. Enrichment failures are
// reported but do not stop the save.
func runReprocess(ctx context.Context, b *backend, st store.Store, s *model.Search, urls []string, opts searchOptions, out, errOut io.Writer) error {
	ctl := b.controller()
	defer ctl.Close()
	ctl.Load(*s)

	var failed int
	if len(urls) == 0 {
		if err := ctl.ReprocessAll(ctx); err != nil {
			if !eris.Is(err, finder.ErrEnrichFailed) {
				return err
			}
			fmt.Fprintln(errOut, err.Error())
			failed++
		}
	} else {
		for _, u := range urls {
			if _, err := ctl.Reprocess(ctx, u); err != nil {
				if !eris.Is(err, finder.ErrEnrichFailed) && !eris.Is(err, finder.ErrLeadNotFound) {
					return err
				}
				fmt.Fprintf(errOut, "%s: %v\n", u, err)
				failed++
			}
		}
	}

	updated := ctl.Snapshot().Search
	if err := st.SaveSearch(ctx, &updated); err != nil {
		return eris.Wrap(err, "reprocess: save search")
	}
	zap.L().Info("reprocess: saved", zap.String("search_id", updated.ID), zap.Int("failed", failed))

	if err := emitLeads(out, opts, updated.Leads); err != nil {
		return err
	}
	if failed > 0 {
		return eris.Wrap(finder.ErrEnrichFailed, "reprocess")
	}
	return nil
}

func init() {
	reprocessCmd.Flags().String("format", formatTable, "output format: table, json, yaml, csv")
	rootCmd.AddCommand(reprocessCmd)
}
