package ingest

import (
	"net/url"
	"strings"
)

// payloadKind classifies a captured response URL against the monitored
// endpoints. Classification is by URL only; whether the body actually
// matches the expected schema is decided when it is parsed.
type payloadKind int

const (
	kindPositions payloadKind = iota
	kindMarkets
	kindConfig
	kindDetail
)

func (k payloadKind) String() string {
	switch k {
	case kindPositions:
		return "positions"
	case kindMarkets:
		return "markets"
	case kindConfig:
		return "config"
	default:
		return "detail"
	}
}

func classify(rawURL string) payloadKind {
	switch {
	case strings.Contains(rawURL, "/portfolio/history"):
		return kindPositions
	case strings.Contains(rawURL, "/markets") && !strings.Contains(rawURL, "/history"):
		return kindMarkets
	case strings.Contains(rawURL, "/config"):
		return kindConfig
	default:
		return kindDetail
	}
}

// hasZeroOffset reports whether the request asked for the first page of a
// listing.
func hasZeroOffset(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return strings.Contains(rawURL, "offset=0")
	}
	return u.Query().Get("offset") == "0"
}

// positionIDFromURL extracts the position identifier from an event-detail
// URL: the path segment immediately before a literal "history" segment,
// unless that segment is "portfolio" (which marks the listing endpoint, not
// a position). Returns "" when no identifier is present.
func positionIDFromURL(rawURL string) string {
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		path = u.Path
	}
	var parts []string
	for _, p := range strings.Split(path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	for i, p := range parts {
		if p == "history" && i > 0 && parts[i-1] != "portfolio" {
			return parts[i-1]
		}
	}
	return ""
}
