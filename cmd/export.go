package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lead-finder/internal/export"
	"github.com/sells-group/lead-finder/internal/model"
	"github.com/sells-group/lead-finder/internal/reconcile"
	"github.com/sells-group/lead-finder/pkg/leadapi"
	"github.com/sells-group/lead-finder/pkg/notion"
	sfpkg "github.com/sells-group/lead-finder/pkg/salesforce"
)

const (
	destCSV        = "csv"
	destXLSX       = "xlsx"
	destSheets     = "sheets"
	destNotion     = "notion"
	destSalesforce = "salesforce"
)

var exportCmd = &cobra.Command{
	Use:   "export <id|latest>",
	Short: "Export the leads of a saved search",
	Long: "Exports a saved search to a CSV or XLSX file, a Google Sheet through the backend, " +
		"a Notion database or Salesforce Lead records.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		dest, _ := cmd.Flags().GetString("to")
		output, _ := cmd.Flags().GetString("output")
		filter, _ := cmd.Flags().GetString("filter")

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		s, err := resolveSearch(ctx, st, args[0])
		if err != nil {
			return err
		}
		leads := reconcile.Filter(s.Leads, filter)

		dest = strings.ToLower(dest)
		switch dest {
		case destCSV, destXLSX:
			return exportFile(cmd.OutOrStdout(), dest, output, leads, time.Now())
		case destSheets:
			b, err := newBackend(cfg.API.BaseURL, false)
			if err != nil {
				return err
			}
			return exportSheets(ctx, b.api, leads, cmd.OutOrStdout())
		case destNotion:
			nc, err := initNotion()
			if err != nil {
				return err
			}
			return exportNotion(ctx, nc, cfg.Notion.LeadDB, leads, cmd.OutOrStdout())
		case destSalesforce:
			sf, err := initSalesforce()
			if err != nil {
				return err
			}
			return exportSalesforce(ctx, sf, leads, cmd.OutOrStdout())
		default:
			return fmt.Errorf("unknown export destination %q (want csv, xlsx, sheets, notion or salesforce)", dest)
		}
	},
}

// exportFile writes leads to a CSV or XLSX file. Zero leads write nothing.
func exportFile(out io.Writer, dest, output string, leads []model.Lead, now time.Time) error {
	var (
		path string
		err  error
	)
	if dest == destXLSX {
		path, err = export.SaveXLSX(output, leads, now)
	} else {
		path, err = export.SaveCSV(output, leads, now)
	}
	if err != nil {
		return err
	}
	if path == "" {
		fmt.Fprintln(out, "No leads to export.")
		return nil
	}
	fmt.Fprintf(out, "Exported %d leads to %s\n", len(leads), path)
	return nil
}

// exportSheets sends leads to the backend's sheet export, logging in first
// when the session is not authenticated.
func exportSheets(ctx context.Context, api leadapi.Client, leads []model.Lead, out io.Writer) error {
	if len(leads) == 0 {
		fmt.Fprintln(out, "No leads to export.")
		return nil
	}

	info, err := api.Session(ctx)
	if err != nil {
		return eris.Wrap(err, "export: check session")
	}
	if !info.LoggedIn {
		if _, err := login(ctx, api, out); err != nil {
			return err
		}
	}

	if err := api.ExportSheets(ctx, export.Rows(leads)); err != nil {
		return eris.Wrap(err, "export: sheets")
	}
	fmt.Fprintf(out, "Exported %d leads to Google Sheets\n", len(leads))
	return nil
}

func exportNotion(ctx context.Context, nc notion.Client, dbID string, leads []model.Lead, out io.Writer) error {
	res, err := notion.ExportLeads(ctx, nc, dbID, leads)
	fmt.Fprintf(out, "Notion: %d created, %d skipped\n", res.Created, res.Skipped)
	return err
}

func exportSalesforce(ctx context.Context, sf sfpkg.Client, leads []model.Lead, out io.Writer) error {
	results, skipped, err := sfpkg.InsertLeads(ctx, sf, leads)

	var created, failed int
	for _, r := range results {
		if r.Success {
			created++
			continue
		}
		failed++
		zap.L().Warn("export: salesforce lead rejected", zap.Strings("errors", r.Errors))
	}
	fmt.Fprintf(out, "Salesforce: %d created, %d skipped, %d failed\n", created, skipped, failed)
	return err
}

func init() {
	exportCmd.Flags().String("to", destCSV, "destination: csv, xlsx, sheets, notion, salesforce")
	exportCmd.Flags().StringP("output", "o", "", "output file or directory for csv/xlsx (default leads-<unix ms>.<ext>)")
	exportCmd.Flags().String("filter", "", "only export leads containing this text")
	rootCmd.AddCommand(exportCmd)
}
