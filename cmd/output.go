package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/sells-group/lead-finder/internal/export"
	"github.com/sells-group/lead-finder/internal/model"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
	formatCSV   = "csv"
)

// writeLeads renders leads to out in the given format.
func writeLeads(out io.Writer, format string, leads []model.Lead) error {
	switch strings.ToLower(format) {
	case "", formatTable:
		formatLeadTable(out, leads)
		return nil
	case formatJSON:
		return writeJSON(out, leads)
	case formatYAML:
		return writeYAML(out, leads)
	case formatCSV:
		if len(leads) == 0 {
			return nil
		}
		return export.WriteCSV(out, leads)
	default:
		return fmt.Errorf("unknown format %q (want table, json, yaml or csv)", format)
	}
}

func formatLeadTable(out io.Writer, leads []model.Lead) {
	if len(leads) == 0 {
		fmt.Fprintln(out, "No leads found.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tTITLE\tLINK\tEMAIL\tPHONE\tPROFILE\tLOCATION\tERROR")
	fmt.Fprintln(w, "----\t-----\t----\t-----\t-----\t-------\t--------\t-----")
	for _, l := range leads {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			model.FormatRank(l.Rank),
			truncate(model.Deref(l.Title), 40),
			l.PrimaryLink(),
			model.Deref(l.Email),
			model.Deref(l.Phone),
			l.ProfileLink(),
			model.Deref(l.LocationHQ),
			model.Deref(l.Error),
		)
	}
	w.Flush()
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeYAML(out io.Writer, v any) error {
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// truncate shortens s to n runes, marking the cut with "...".
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}

// truncateID returns the first 8 characters of an ID for display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
