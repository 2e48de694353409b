package reconcile

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/sells-group/lead-finder/internal/model"
)

// Filter returns the leads whose title, url, email, phone, linkedin_url or
// location_hq contains text, ignoring case. Blank text matches everything.
func Filter(leads []model.Lead, text string) []model.Lead {
	fold := cases.Fold()
	needle := fold.String(strings.TrimSpace(text))
	if needle == "" {
		return leads
	}

	var out []model.Lead
	for _, l := range leads {
		for _, f := range []*string{l.Title, l.URL, l.Email, l.Phone, l.LinkedInURL, l.LocationHQ} {
			if f != nil && strings.Contains(fold.String(*f), needle) {
				out = append(out, l)
				break
			}
		}
	}
	return out
}
