package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lead-finder/internal/finder"
	"github.com/sells-group/lead-finder/internal/model"
	"github.com/sells-group/lead-finder/internal/reconcile"
	"github.com/sells-group/lead-finder/internal/store"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Run a lead search and print the results",
	Long: "Opens a streaming search against the backend, showing progress while results arrive. " +
		"Falls back to a single request when streaming is unavailable. The finished search is saved to history.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		opts, err := searchOptionsFromFlags(cmd)
		if err != nil {
			return err
		}

		if err := cfg.Validate("search"); err != nil {
			return err
		}

		b, err := newBackend(cfg.API.BaseURL, cfg.Search.Streaming && !opts.noStream)
		if err != nil {
			return err
		}

		var st store.Store
		if !opts.noSave {
			st, err = initStore(ctx)
			if err != nil {
				return eris.Wrap(err, "search: open store")
			}
			defer st.Close() //nolint:errcheck
		}

		return runSearch(ctx, b, st, args[0], opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

type searchOptions struct {
	maxResults int
	domains    []string
	noStream   bool
	noSave     bool
	quiet      bool
	filter     string
	format     string
	output     string
}

func searchOptionsFromFlags(cmd *cobra.Command) (searchOptions, error) {
	var o searchOptions
	var err error
	if o.maxResults, err = cmd.Flags().GetInt("max-results"); err != nil {
		return o, err
	}
	if o.domains, err = cmd.Flags().GetStringSlice("domains"); err != nil {
		return o, err
	}
	o.noStream, _ = cmd.Flags().GetBool("no-stream")
	o.noSave, _ = cmd.Flags().GetBool("no-save")
	o.quiet, _ = cmd.Flags().GetBool("quiet")
	o.filter, _ = cmd.Flags().GetString("filter")
	o.format, _ = cmd.Flags().GetString("format")
	o.output, _ = cmd.Flags().GetString("output")

	if o.maxResults <= 0 {
		o.maxResults = cfg.Search.MaxResults
	}
	if len(o.domains) == 0 {
		o.domains = cfg.Search.Domains
	}
	return o, nil
}

// runSearch executes one search, saves it when st is non-nil and writes the
// (filtered) result set. Progress and the lead count go to errOut.
func runSearch(ctx context.Context, b *backend, st store.Store, query string, opts searchOptions, out, errOut io.Writer) error {
	// The estimator keeps settling after Search returns; stop printing then.
	var (
		mu      sync.Mutex
		stopped bool
		ctlOpts []finder.Option
	)
	if !opts.quiet {
		show := progressPrinter(errOut)
		ctlOpts = append(ctlOpts, finder.WithOnProgress(func(pct int) {
			mu.Lock()
			defer mu.Unlock()
			if !stopped {
				show(pct)
			}
		}))
	}
	ctlOpts = append(ctlOpts,
		finder.WithMaxResults(opts.maxResults),
		finder.WithDomains(opts.domains),
	)

	ctl := b.controller(ctlOpts...)
	defer ctl.Close()

	state, searchErr := ctl.Search(ctx, query)
	mu.Lock()
	stopped = true
	mu.Unlock()
	if !opts.quiet {
		fmt.Fprintln(errOut)
	}

	if st != nil {
		s := state.Search
		if err := st.SaveSearch(ctx, &s); err != nil {
			zap.L().Warn("search: save failed", zap.String("search_id", s.ID), zap.Error(err))
		} else {
			fmt.Fprintf(errOut, "Saved search %s (%d leads)\n", truncateID(s.ID), len(s.Leads))
		}
	}

	if err := emitLeads(out, opts, state.Leads); err != nil {
		return err
	}

	if searchErr != nil {
		return eris.Wrapf(searchErr, "search %q", query)
	}
	return nil
}

// emitLeads filters leads and writes them to out, or to opts.output when set.
func emitLeads(out io.Writer, opts searchOptions, leads []model.Lead) error {
	leads = reconcile.Filter(leads, opts.filter)

	if opts.output == "" {
		return writeLeads(out, opts.format, leads)
	}

	// CSV export produces nothing for an empty set, so no file is created.
	if strings.EqualFold(opts.format, formatCSV) && len(leads) == 0 {
		return nil
	}

	f, err := os.Create(opts.output)
	if err != nil {
		return eris.Wrap(err, "create output file")
	}
	if err := writeLeads(f, opts.format, leads); err != nil {
		_ = f.Close()
		return err
	}
	return eris.Wrap(f.Close(), "close output file")
}

// progressPrinter redraws a single progress line on w.
func progressPrinter(w io.Writer) func(int) {
	last := -1
	return func(pct int) {
		if pct == last {
			return
		}
		last = pct
		fmt.Fprintf(w, "\rSearching... %3d%%", pct)
	}
}

func init() {
	searchCmd.Flags().Int("max-results", 0, "maximum results per search (default from config)")
	searchCmd.Flags().StringSlice("domains", nil, "restrict the search to these domains")
	searchCmd.Flags().Bool("no-stream", false, "use the single-request fallback instead of streaming")
	searchCmd.Flags().String("filter", "", "only show leads containing this text")
	searchCmd.Flags().String("format", formatTable, "output format: table, json, yaml, csv")
	searchCmd.Flags().StringP("output", "o", "", "write results to this file instead of stdout")
	searchCmd.Flags().Bool("no-save", false, "do not save the search to history")
	searchCmd.Flags().BoolP("quiet", "q", false, "suppress progress output")
	rootCmd.AddCommand(searchCmd)
}
