package resolve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"tracklink/internal/core"
	"tracklink/pkg/fuzzy"
)

const (
	// adapterTimeout bounds one provider round-trip.
	adapterTimeout = 10 * time.Second
	// maxHTTPRedirects is the maximum number of HTTP redirects to follow.
	maxHTTPRedirects = 3
)

// ErrTooManyRedirects is returned when too many redirects are encountered.
var ErrTooManyRedirects = errors.New("too many redirects")

// Adapter searches one secondary platform for links matching the query
// metadata. Implementations filter their own candidates at the acceptance
// threshold; the resolver re-filters regardless.
type Adapter interface {
	Platform() core.Platform
	Search(ctx context.Context, query core.Meta) ([]core.Hit, error)
}

// newHTTPClient creates an HTTP client with standard settings and redirect
// validation.
func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: adapterTimeout,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxHTTPRedirects {
				return ErrTooManyRedirects
			}
			return nil
		},
	}
}

// fetchJSON performs a GET and decodes the JSON body into dest.
func fetchJSON(ctx context.Context, client *http.Client, reqURL string, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("failed to decode provider response: %w", err)
	}

	return nil
}

// queryCandidate projects query metadata into the scoring-input shape.
func queryCandidate(query core.Meta) fuzzy.Candidate {
	return fuzzy.Candidate{
		Title:      query.Title,
		Artist:     query.Artist,
		ISRC:       query.ISRC,
		DurationMS: query.DurationMS,
	}
}

// textQuery is the provider search string used when no ISRC is available.
func textQuery(query core.Meta) string {
	return query.Title + " " + query.Artist
}
