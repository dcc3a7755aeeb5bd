package contracts

import "time"

// FeedSource is the normalized origin of a feed item
type FeedSource string

const (
	FeedNews    FeedSource = "news"
	FeedTwitter FeedSource = "twitter"
	FeedReddit  FeedSource = "reddit"
	FeedYouTube FeedSource = "youtube"
)

// FeedSources lists the filterable sources in display order
var FeedSources = []FeedSource{FeedNews, FeedTwitter, FeedReddit, FeedYouTube}

// FeedItem is one entry of the live multi-source feed
type FeedItem struct {
	ID         string     `json:"id"`
	Source     FeedSource `json:"source"`
	Title      string     `json:"title"`
	Summary    string     `json:"summary"`
	Sentiment  string     `json:"sentiment"` // positive, negative, neutral
	Confidence float64    `json:"confidence"`
	Timestamp  time.Time  `json:"timestamp"`
	URL        string     `json:"url"`
	Entities   []string   `json:"entities"`
	TrustScore string     `json:"trust_score"` // high, medium, low
}

// Insight is the latest market summary pushed on the insights stream
type Insight struct {
	Summary       string    `json:"summary"`
	TopSentiments []Signal  `json:"top_sentiments"`
	Sources       []string  `json:"sources"`
	ReceivedAt    time.Time `json:"received_at"`
}
