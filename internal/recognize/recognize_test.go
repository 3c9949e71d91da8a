package recognize

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"tracklink/internal/core"
)

func newTestRecognizer(t *testing.T, handler http.HandlerFunc) *Recognizer {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewRecognizer(&core.RecognizeConfig{
		APIToken: "test-token",
		BaseURL:  server.URL,
	}, zap.NewNop())
}

func TestRecognizer_FromQuery(t *testing.T) {
	recognizer := newTestRecognizer(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm() unexpected error: %v", err)
		}
		if got := r.PostForm.Get("q"); got != "bohemian rhapsody queen" {
			t.Errorf("q = %q, want %q", got, "bohemian rhapsody queen")
		}
		if got := r.PostForm.Get("api_token"); got != "test-token" {
			t.Errorf("api_token = %q, want %q", got, "test-token")
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"status": "success",
			"result": {
				"artist": "Queen",
				"title": "Bohemian Rhapsody",
				"album": "A Night at the Opera",
				"release_date": "1975-10-31",
				"isrc": "gbum71029604",
				"song_link": "https://lis.tn/abc"
			}
		}`))
	})

	meta, err := recognizer.FromQuery(context.Background(), "bohemian rhapsody queen")
	if err != nil {
		t.Fatalf("FromQuery() unexpected error: %v", err)
	}

	if meta.Title != "Bohemian Rhapsody" || meta.Artist != "Queen" {
		t.Errorf("FromQuery() = %q / %q, want title/artist populated", meta.Title, meta.Artist)
	}
	if meta.ISRC != "GBUM71029604" {
		t.Errorf("FromQuery() ISRC = %q, want normalized uppercase", meta.ISRC)
	}
}

func TestRecognizer_NoResultIsNoMatch(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "Null result",
			body: `{"status": "success", "result": null}`,
		},
		{
			name: "Missing title",
			body: `{"status": "success", "result": {"artist": "Queen"}}`,
		},
		{
			name: "Error status",
			body: `{"status": "error"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recognizer := newTestRecognizer(t, func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := recognizer.FromURL(context.Background(), "https://example.com/song")
			if !errors.Is(err, core.ErrNoMatch) {
				t.Errorf("FromURL() error = %v, want core.ErrNoMatch", err)
			}
		})
	}
}

func TestRecognizer_ServerErrorIsNotNoMatch(t *testing.T) {
	recognizer := newTestRecognizer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := recognizer.FromQuery(context.Background(), "anything")
	if err == nil {
		t.Fatal("FromQuery() expected error for 502 response")
	}
	if errors.Is(err, core.ErrNoMatch) {
		t.Error("FromQuery() provider fault must not be reported as no-match")
	}
}

func TestRecognizer_Enabled(t *testing.T) {
	enabled := NewRecognizer(&core.RecognizeConfig{APIToken: "x"}, zap.NewNop())
	if !enabled.Enabled() {
		t.Error("Enabled() = false with API token set")
	}

	disabled := NewRecognizer(&core.RecognizeConfig{}, zap.NewNop())
	if disabled.Enabled() {
		t.Error("Enabled() = true without API token")
	}
}
