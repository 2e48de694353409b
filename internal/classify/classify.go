// Package classify tags URLs as individual profile pages.
package classify

import (
	"net/url"
	"strings"

	"github.com/sells-group/lead-finder/internal/model"
)

const linkedInHost = "linkedin.com"

// linkedInProfileSegments mark an individual (not company) linkedin page.
var linkedInProfileSegments = []string{"/in/", "/pub/"}

// profileHosts are academic and professional identity domains. Subdomains match too.
var profileHosts = []string{
	linkedInHost,
	"orcid.org",
	"researchgate.net",
	"scholar.google.com",
	"academia.edu",
	"ssrn.com",
}

// profilePathTokens appear in the path of staff and personal directory pages.
var profilePathTokens = []string{
	"/people/",
	"/person/",
	"/staff/",
	"/team/",
	"/profile/",
	"/profiles/",
	"/users/",
	"/user/",
	"/faculty/",
	"/directory/",
	"/author/",
	"/~",
}

// parse returns the lower-cased host without "www." and the lower-cased path.
// ok is false for malformed or host-less URLs.
func parse(raw string) (host, path string, ok bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", "", false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return "", "", false
	}
	host = strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	return host, strings.ToLower(u.EscapedPath()), true
}

// IsLinkedInProfile reports whether raw points at an individual linkedin profile.
func IsLinkedInProfile(raw string) bool {
	host, path, ok := parse(raw)
	if !ok || host != linkedInHost {
		return false
	}
	for _, seg := range linkedInProfileSegments {
		if strings.Contains(path, seg) {
			return true
		}
	}
	return false
}

// IsProfileLike reports whether raw looks like a page about one person: either
// its host is a known identity domain or its path carries a directory marker.
func IsProfileLike(raw string) bool {
	host, path, ok := parse(raw)
	if !ok {
		return false
	}
	for _, h := range profileHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	for _, tok := range profilePathTokens {
		if strings.Contains(path, tok) {
			return true
		}
	}
	return false
}

// Annotate backfills LinkedInURL and ProfileURL from the lead's URL when they
// are absent. Values already present are never replaced.
func Annotate(l model.Lead) model.Lead {
	u := l.Key()
	if u == "" {
		return l
	}
	if l.LinkedInURL == nil && IsLinkedInProfile(u) {
		l.LinkedInURL = model.String(u)
	}
	if l.ProfileURL == nil && IsProfileLike(u) {
		l.ProfileURL = model.String(u)
	}
	return l
}
