package salesforce

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-finder/internal/model"
)

// maxBatchSize is the Salesforce Collections API limit per request.
const maxBatchSize = 200

const (
	leadSObject   = "Lead"
	leadSource    = "Lead Finder"
	unknownPerson = "[not provided]"
)

// LeadFields maps a lead to Salesforce Lead sObject fields. Company falls
// back to the URL host when the lead has no title.
func LeadFields(l model.Lead) map[string]any {
	company := strings.TrimSpace(model.Deref(l.Title))
	if company == "" {
		company = hostOf(l.Key())
	}

	fields := map[string]any{
		"LastName":   unknownPerson,
		"Company":    company,
		"Website":    l.Key(),
		"LeadSource": leadSource,
	}
	if l.Email != nil {
		fields["Email"] = *l.Email
	}
	if l.Phone != nil {
		fields["Phone"] = *l.Phone
	}

	var desc []string
	if l.LocationHQ != nil {
		desc = append(desc, "HQ: "+*l.LocationHQ)
	}
	if l.LinkedInURL != nil {
		desc = append(desc, "LinkedIn: "+*l.LinkedInURL)
	}
	if l.Rank != nil {
		desc = append(desc, "Rank: "+model.FormatRank(l.Rank))
	}
	if len(desc) > 0 {
		fields["Description"] = strings.Join(desc, "\n")
	}
	return fields
}

// existingLead is the projection used to look up already-imported leads.
type existingLead struct {
	Website string `json:"Website" salesforce:"Website"`
}

// ExistingWebsites returns which of websites already exist on a Lead record.
func ExistingWebsites(ctx context.Context, c Client, websites []string) (map[string]struct{}, error) {
	found := make(map[string]struct{})
	for start := 0; start < len(websites); start += maxBatchSize {
		end := min(start+maxBatchSize, len(websites))

		quoted := make([]string, 0, end-start)
		for _, w := range websites[start:end] {
			quoted = append(quoted, "'"+escapeSoql(w)+"'")
		}
		soql := fmt.Sprintf("SELECT Website FROM Lead WHERE Website IN (%s)", strings.Join(quoted, ", "))

		var rows []existingLead
		if err := c.Query(ctx, soql, &rows); err != nil {
			return nil, eris.Wrap(err, "sf: existing websites")
		}
		for _, r := range rows {
			found[r.Website] = struct{}{}
		}
	}
	return found, nil
}

// InsertLeads creates a Lead record per lead with a URL that is not already
// present in Salesforce, in batches of 200. It returns the per-record results
// and the number of leads skipped.
func InsertLeads(ctx context.Context, c Client, leads []model.Lead) ([]CollectionResult, int, error) {
	var (
		websites []string
		pending  []model.Lead
		skipped  int
	)
	seen := make(map[string]struct{})
	for _, l := range leads {
		u := l.Key()
		if u == "" {
			skipped++
			continue
		}
		if _, ok := seen[u]; ok {
			skipped++
			continue
		}
		seen[u] = struct{}{}
		websites = append(websites, u)
		pending = append(pending, l)
	}
	if len(pending) == 0 {
		return nil, skipped, nil
	}

	existing, err := ExistingWebsites(ctx, c, websites)
	if err != nil {
		return nil, skipped, err
	}

	records := make([]map[string]any, 0, len(pending))
	for _, l := range pending {
		if _, ok := existing[l.Key()]; ok {
			skipped++
			continue
		}
		records = append(records, LeadFields(l))
	}

	var allResults []CollectionResult
	for start := 0; start < len(records); start += maxBatchSize {
		end := min(start+maxBatchSize, len(records))

		results, err := c.InsertCollection(ctx, leadSObject, records[start:end])
		if err != nil {
			return allResults, skipped, eris.Wrap(err, fmt.Sprintf("sf: insert leads batch %d-%d", start, end))
		}
		allResults = append(allResults, results...)
	}

	failed := 0
	for _, r := range allResults {
		if !r.Success {
			failed++
		}
	}
	zap.L().Info("sf: leads inserted",
		zap.Int("records", len(records)),
		zap.Int("failed", failed),
		zap.Int("skipped", skipped),
	)
	return allResults, skipped, nil
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}

// escapeSoql escapes single quotes in SOQL string literals to prevent injection.
func escapeSoql(s string) string {
	return strings.ReplaceAll(s, "'", "\\'")
}
