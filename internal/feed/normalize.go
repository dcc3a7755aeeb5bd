package feed

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"

	"github.com/wonny/marketlens/backend/internal/contracts"
	"github.com/wonny/marketlens/backend/internal/evidence"
	"github.com/wonny/marketlens/backend/internal/producer"
)

const (
	maxTitleRunes   = 120
	maxSummaryRunes = 240
	fallbackTitle   = "Market item"
)

// sourceAliases maps producer source keys onto the filterable sources
var sourceAliases = map[string]contracts.FeedSource{
	"news":    contracts.FeedNews,
	"twitter": contracts.FeedTwitter,
	"x.com":   contracts.FeedTwitter,
	"x":       contracts.FeedTwitter,
	"tweet":   contracts.FeedTwitter,
	"youtube": contracts.FeedYouTube,
	"yt":      contracts.FeedYouTube,
	"video":   contracts.FeedYouTube,
	"reddit":  contracts.FeedReddit,
	"r/":      contracts.FeedReddit,
}

// NormalizeSource maps a producer source key to a FeedSource.
// Unknown keys are treated as news.
func NormalizeSource(s string) contracts.FeedSource {
	key := strings.ToLower(strings.TrimSpace(s))
	if src, ok := sourceAliases[key]; ok {
		return src
	}
	if strings.HasPrefix(key, "r/") {
		return contracts.FeedReddit
	}
	return contracts.FeedNews
}

// SentimentLabel buckets a score: >0.6 positive, <0.4 negative
func SentimentLabel(score float64) string {
	switch {
	case score > 0.6:
		return "positive"
	case score < 0.4:
		return "negative"
	default:
		return "neutral"
	}
}

// StripHTML returns the visible text of s with whitespace collapsed
func StripHTML(s string) string {
	if strings.ContainsAny(s, "<&") {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(s)); err == nil {
			s = doc.Text()
		}
	}
	return strings.Join(strings.Fields(s), " ")
}

// Normalize converts a raw producer record into a FeedItem
func Normalize(raw producer.RawFeedItem, now time.Time) contracts.FeedItem {
	src := NormalizeSource(raw.Source)
	text := StripHTML(raw.Text)

	title := StripHTML(raw.Title)
	if title == "" {
		title = truncate(text, maxTitleRunes)
	}
	if title == "" {
		title = fallbackTitle
	}
	summary := StripHTML(raw.Summary)
	if summary == "" {
		summary = truncate(text, maxSummaryRunes)
	}

	label, score := parseSentiment(raw.Sentiment)
	confidence := 0.5
	switch {
	case raw.Confidence != nil:
		confidence = *raw.Confidence
	case score != nil:
		confidence = *score
	}
	if confidence < 0 || confidence > 1 {
		confidence = 0.5
	}
	if label == "" {
		label = SentimentLabel(confidence)
	}

	id := raw.ID
	if id == "" {
		id = uuid.NewString()
	}

	entities := raw.Entities
	if entities == nil {
		entities = []string{}
	}

	return contracts.FeedItem{
		ID:         id,
		Source:     src,
		Title:      title,
		Summary:    summary,
		Sentiment:  label,
		Confidence: confidence,
		Timestamp:  parseTimestamp(raw.Timestamp, now),
		URL:        raw.URL,
		Entities:   entities,
		TrustScore: trustTier(raw, src),
	}
}

func parseSentiment(raw json.RawMessage) (label string, score *float64) {
	if len(raw) == 0 {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch l := strings.ToLower(s); l {
		case "positive", "negative", "neutral":
			return l, nil
		}
		return "", nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return "", &f
	}
	return "", nil
}

func trustTier(raw producer.RawFeedItem, src contracts.FeedSource) string {
	switch t := evidence.Tier(strings.ToLower(raw.TrustScore)); t {
	case evidence.TierHigh, evidence.TierMedium, evidence.TierLow:
		return string(t)
	}
	if raw.SourceTrust != nil {
		return string(evidence.TrustTier(*raw.SourceTrust))
	}
	if src == contracts.FeedNews {
		return string(evidence.TierHigh)
	}
	return string(evidence.TierMedium)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05",
	time.RFC1123Z,
	time.RFC1123,
}

// parseTimestamp accepts RFC 3339, naive ISO (as UTC) and RSS dates
func parseTimestamp(s string, now time.Time) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return now.UTC()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
