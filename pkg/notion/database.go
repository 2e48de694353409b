package notion

import (
	"context"
	"strings"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// QueryAll fetches all pages from a Notion database, handling pagination.
// The next page is fetched in a goroutine while the current one is collected.
func QueryAll(ctx context.Context, c Client, dbID string, filter *notionapi.DatabaseQueryRequest) ([]notionapi.Page, error) {
	var all []notionapi.Page

	next := func(cursor notionapi.Cursor) *notionapi.DatabaseQueryRequest {
		req := &notionapi.DatabaseQueryRequest{StartCursor: cursor}
		if filter != nil {
			req.Filter = filter.Filter
			req.Sorts = filter.Sorts
			req.PageSize = filter.PageSize
		}
		return req
	}

	type prefetchResult struct {
		resp *notionapi.DatabaseQueryResponse
		err  error
	}
	var prefetchCh <-chan prefetchResult

	for {
		var resp *notionapi.DatabaseQueryResponse
		var err error

		if prefetchCh != nil {
			result := <-prefetchCh
			resp, err = result.resp, result.err
		} else {
			resp, err = c.QueryDatabase(ctx, dbID, next(""))
		}
		if err != nil {
			return nil, eris.Wrap(err, "notion: query all page")
		}

		all = append(all, resp.Results...)
		if !resp.HasMore {
			break
		}

		req := next(resp.NextCursor)
		ch := make(chan prefetchResult, 1)
		prefetchCh = ch
		go func() {
			r, e := c.QueryDatabase(ctx, dbID, req)
			ch <- prefetchResult{resp: r, err: e}
		}()
	}

	return all, nil
}

// ExistingURLs returns the set of values of the URL property across every
// page of the database.
func ExistingURLs(ctx context.Context, c Client, dbID string) (map[string]struct{}, error) {
	pages, err := QueryAll(ctx, c, dbID, nil)
	if err != nil {
		return nil, eris.Wrap(err, "notion: existing urls")
	}
	urls := make(map[string]struct{}, len(pages))
	for _, p := range pages {
		if u := pageURL(p); u != "" {
			urls[u] = struct{}{}
		}
	}
	return urls, nil
}

func pageURL(p notionapi.Page) string {
	switch prop := p.Properties[PropURL].(type) {
	case *notionapi.URLProperty:
		return strings.TrimSpace(prop.URL)
	case notionapi.URLProperty:
		return strings.TrimSpace(prop.URL)
	}
	return ""
}
