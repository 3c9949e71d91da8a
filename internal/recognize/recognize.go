// Package recognize is the non-authoritative fallback metadata extractor.
// It talks to an AudD-style recognition API that accepts either a link or
// a free-text query and answers with best-effort track metadata.
package recognize

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"tracklink/internal/core"
)

const requestTimeout = 15 * time.Second

// rawResponse is the provider's wire shape. Fields beyond these are
// ignored; result may legitimately be absent.
type rawResponse struct {
	Status string     `json:"status"`
	Result *rawResult `json:"result"`
}

type rawResult struct {
	Artist      string `json:"artist"`
	Title       string `json:"title"`
	Album       string `json:"album"`
	ReleaseDate string `json:"release_date"`
	ISRC        string `json:"isrc"`
	SongLink    string `json:"song_link"`
}

type Recognizer struct {
	config *core.RecognizeConfig
	logger *zap.Logger
	client *http.Client
}

func NewRecognizer(config *core.RecognizeConfig, logger *zap.Logger) *Recognizer {
	return &Recognizer{
		config: config,
		logger: logger,
		client: &http.Client{Timeout: requestTimeout},
	}
}

// Enabled reports whether an API token is configured.
func (r *Recognizer) Enabled() bool {
	return r.config.APIToken != ""
}

// FromURL recognizes the recording behind any music link the provider
// understands.
func (r *Recognizer) FromURL(ctx context.Context, rawURL string) (*core.Meta, error) {
	form := url.Values{}
	form.Set("url", rawURL)
	return r.recognize(ctx, form)
}

// FromQuery recognizes a recording from a free-text description.
func (r *Recognizer) FromQuery(ctx context.Context, query string) (*core.Meta, error) {
	form := url.Values{}
	form.Set("q", query)
	return r.recognize(ctx, form)
}

func (r *Recognizer) recognize(ctx context.Context, form url.Values) (*core.Meta, error) {
	form.Set("api_token", r.config.APIToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.config.BaseURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("recognition request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("recognition API returned status %d", resp.StatusCode)
	}

	var decoded rawResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode recognition response: %w", err)
	}

	// A success status with a null or empty result is a normal "nothing
	// recognized" answer, not a provider fault.
	if decoded.Status != "success" || decoded.Result == nil ||
		decoded.Result.Title == "" || decoded.Result.Artist == "" {
		return nil, core.ErrNoMatch
	}

	meta := &core.Meta{
		Title:       decoded.Result.Title,
		Artist:      decoded.Result.Artist,
		Album:       decoded.Result.Album,
		ReleaseDate: decoded.Result.ReleaseDate,
		SourceURL:   decoded.Result.SongLink,
	}
	// ISRC is only present on provider plans that surface it.
	if decoded.Result.ISRC != "" {
		meta.ISRC = strings.ToUpper(strings.TrimSpace(decoded.Result.ISRC))
	}

	r.logger.Debug("Recognition fallback produced metadata",
		zap.String("title", meta.Title),
		zap.String("artist", meta.Artist),
		zap.Bool("has_isrc", meta.ISRC != ""))

	return meta, nil
}
