package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/lead-finder/internal/model"
	"github.com/sells-group/lead-finder/internal/store"
)

var searchesCmd = &cobra.Command{
	Use:   "searches",
	Short: "Manage saved searches",
}

var searchesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved searches, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		query, _ := cmd.Flags().GetString("query")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		format, _ := cmd.Flags().GetString("format")

		searches, err := st.ListSearches(ctx, store.SearchFilter{
			Status: model.SearchStatus(status),
			Query:  query,
			Limit:  limit,
			Offset: offset,
		})
		if err != nil {
			return eris.Wrap(err, "list searches")
		}

		switch format {
		case formatJSON:
			return writeJSON(cmd.OutOrStdout(), searches)
		case formatYAML:
			return writeYAML(cmd.OutOrStdout(), searches)
		}
		formatSearchList(cmd.OutOrStdout(), searches)
		return nil
	},
}

var searchesShowCmd = &cobra.Command{
	Use:   "show <id|latest>",
	Short: "Show the leads of a saved search",
	Args:  cobra.ExactArgs(1),
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

		filter, _ := cmd.Flags().GetString("filter")
		format, _ := cmd.Flags().GetString("format")

		switch format {
		case formatJSON, formatYAML:
			if filter == "" {
				if format == formatJSON {
					return writeJSON(cmd.OutOrStdout(), s)
				}
				return writeYAML(cmd.OutOrStdout(), s)
			}
		case "", formatTable:
			formatSearchHeader(cmd.OutOrStdout(), s)
		}
		return emitLeads(cmd.OutOrStdout(), searchOptions{filter: filter, format: format}, s.Leads)
	},
}

var searchesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a saved search",
	Args:  cobra.ExactArgs(1),
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
		if err := st.DeleteSearch(ctx, s.ID); err != nil {
			return eris.Wrap(err, "delete search")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted search %s\n", s.ID)
		return nil
	},
}

// resolveSearch finds a saved search by full ID, unique ID prefix or "latest".
func resolveSearch(ctx context.Context, st store.Store, ref string) (*model.Search, error) {
	if ref == "latest" {
		list, err := st.ListSearches(ctx, store.SearchFilter{Limit: 1})
		if err != nil {
			return nil, eris.Wrap(err, "list searches")
		}
		if len(list) == 0 {
			return nil, eris.New("no saved searches")
		}
		return &list[0], nil
	}

	s, err := st.GetSearch(ctx, ref)
	if err == nil {
		return s, nil
	}
	if !eris.Is(err, store.ErrNotFound) {
		return nil, eris.Wrap(err, "get search")
	}

	list, listErr := st.ListSearches(ctx, store.SearchFilter{Limit: 1000})
	if listErr != nil {
		return nil, eris.Wrap(listErr, "list searches")
	}
	var match *model.Search
	for i := range list {
		if !strings.HasPrefix(list[i].ID, ref) {
			continue
		}
		if match != nil {
			return nil, eris.Errorf("search id %q is ambiguous", ref)
		}
		match = &list[i]
	}
	if match == nil {
		return nil, err
	}
	return match, nil
}

func formatSearchList(out io.Writer, searches []model.Search) {
	if len(searches) == 0 {
		fmt.Fprintln(out, "No searches found.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tQUERY\tSTATUS\tMODE\tLEADS\tCREATED")
	fmt.Fprintln(w, "--\t-----\t------\t----\t-----\t-------")
	for _, s := range searches {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			truncateID(s.ID),
			truncate(s.Query, 40),
			s.Status,
			s.Mode,
			len(s.Leads),
			s.CreatedAt.Format(time.DateTime),
		)
	}
	w.Flush()
}

func formatSearchHeader(out io.Writer, s *model.Search) {
	fmt.Fprintf(out, "Search:  %s\n", s.ID)
	fmt.Fprintf(out, "Query:   %s\n", s.Query)
	fmt.Fprintf(out, "Status:  %s\n", s.Status)
	if s.Mode != "" {
		fmt.Fprintf(out, "Mode:    %s\n", s.Mode)
	}
	if len(s.Domains) > 0 {
		fmt.Fprintf(out, "Domains: %s\n", strings.Join(s.Domains, ", "))
	}
	if s.Error != "" {
		fmt.Fprintf(out, "Error:   %s\n", s.Error)
	}
	fmt.Fprintln(out)
}

func init() {
	searchesListCmd.Flags().String("status", "", "filter by status (streaming, done, failed)")
	searchesListCmd.Flags().String("query", "", "filter by query substring")
	searchesListCmd.Flags().Int("limit", 20, "maximum number of searches")
	searchesListCmd.Flags().Int("offset", 0, "number of searches to skip")
	searchesListCmd.Flags().String("format", formatTable, "output format: table, json, yaml")

	searchesShowCmd.Flags().String("filter", "", "only show leads containing this text")
	searchesShowCmd.Flags().String("format", formatTable, "output format: table, json, yaml, csv")

	searchesCmd.AddCommand(searchesListCmd, searchesShowCmd, searchesDeleteCmd)
	rootCmd.AddCommand(searchesCmd)
}
