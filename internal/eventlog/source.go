package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"hyperfireworks/internal/model"
)

// DecodeJSON reads a JSON array of raw event records.
func DecodeJSON(r io.Reader) ([]model.RawEvent, error) {
	var raw []model.RawEvent
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode events json: %w", err)
	}
	return raw, nil
}

// FileSource reads events from a JSON file on disk.
type FileSource struct {
	Path string
}

func (s FileSource) ReadEvents(ctx context.Context) ([]model.RawEvent, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.Path, err)
	}
	defer f.Close()
	return DecodeJSON(f)
}

// HTTPSource fetches events once from a static URL.
type HTTPSource struct {
	URL    string
	Client *http.Client
}

func (s HTTPSource) ReadEvents(ctx context.Context) ([]model.RawEvent, error) {
	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch events: create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch events: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch events: unexpected status %d", resp.StatusCode)
	}
	return DecodeJSON(resp.Body)
}

// IsRemote reports whether path names an http(s) resource.
func IsRemote(path string) bool {
	return strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://")
}
