package notion

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-finder/internal/model"
)

// Property names of the lead database.
const (
	PropName     = "Name"
	PropURL      = "URL"
	PropEmail    = "Email"
	PropPhone    = "Phone"
	PropLinkedIn = "LinkedIn"
	PropLocation = "Location"
	PropRank     = "Rank"
	PropStatus   = "Status"
)

// newLeadStatus is the status given to every exported page.
const newLeadStatus = "New"

// ExportResult counts the outcome of ExportLeads.
type ExportResult struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

// ExportLeads creates one page per lead in dbID. Leads without a URL, leads
// repeated within the set, and leads whose URL already exists in the database
// are skipped. It stops at the first failed create and returns the counts so far.
func ExportLeads(ctx context.Context, c Client, dbID string, leads []model.Lead) (ExportResult, error) {
	var res ExportResult
	if len(leads) == 0 {
		return res, nil
	}

	seen, err := ExistingURLs(ctx, c, dbID)
	if err != nil {
		return res, err
	}

	log := zap.L().With(zap.String("database", dbID))
	for _, l := range leads {
		if ctx.Err() != nil {
			return res, eris.Wrap(ctx.Err(), "notion: export leads cancelled")
		}

		u := l.Key()
		if u == "" {
			res.Skipped++
			continue
		}
		if _, ok := seen[u]; ok {
			res.Skipped++
			continue
		}
		seen[u] = struct{}{}

		req := &notionapi.PageCreateRequest{
			Parent: notionapi.Parent{
				Type:       notionapi.ParentTypeDatabaseID,
				DatabaseID: notionapi.DatabaseID(dbID),
			},
			Properties: LeadProperties(l),
		}
		if _, err := c.CreatePage(ctx, req); err != nil {
			return res, eris.Wrapf(err, "notion: create page for %s", u)
		}
		res.Created++
	}

	log.Info("notion: leads exported",
		zap.Int("created", res.Created),
		zap.Int("skipped", res.Skipped),
	)
	return res, nil
}

// LeadProperties converts a lead to page properties. Absent fields are omitted.
// The title falls back to the URL when the lead has no title.
func LeadProperties(l model.Lead) notionapi.Properties {
	name := model.Deref(l.Title)
	if name == "" {
		name = l.Key()
	}

	props := notionapi.Properties{
		PropName: notionapi.TitleProperty{
			Type:  notionapi.PropertyTypeTitle,
			Title: []notionapi.RichText{richText(name)},
		},
		PropURL: notionapi.URLProperty{
			Type: notionapi.PropertyTypeURL,
			URL:  l.Key(),
		},
		PropStatus: notionapi.StatusProperty{
			Type:   notionapi.PropertyTypeStatus,
			Status: notionapi.Status{Name: newLeadStatus},
		},
	}
	if l.Email != nil {
		props[PropEmail] = notionapi.EmailProperty{Type: notionapi.PropertyTypeEmail, Email: *l.Email}
	}
	if l.Phone != nil {
		props[PropPhone] = notionapi.PhoneNumberProperty{Type: notionapi.PropertyTypePhoneNumber, PhoneNumber: *l.Phone}
	}
	if l.LinkedInURL != nil {
		props[PropLinkedIn] = notionapi.URLProperty{Type: notionapi.PropertyTypeURL, URL: *l.LinkedInURL}
	}
	if l.LocationHQ != nil {
		props[PropLocation] = notionapi.RichTextProperty{
			Type:     notionapi.PropertyTypeRichText,
			RichText: []notionapi.RichText{richText(*l.LocationHQ)},
		}
	}
	if l.Rank != nil {
		props[PropRank] = notionapi.NumberProperty{Type: notionapi.PropertyTypeNumber, Number: *l.Rank}
	}
	return props
}

func richText(s string) notionapi.RichText {
	return notionapi.RichText{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: s}}
}
