// Package types holds the value types shared across the gateway.
package types

import "time"

// VideoRecord is one video in a channel's catalog. Immutable once stored.
type VideoRecord struct {
	VideoID     string    `json:"videoId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	PublishedAt time.Time `json:"publishedAt"`
	Thumbnail   string    `json:"thumbnail,omitempty"`
	URL         string    `json:"url"`
}

// HistoryEntry is one row of a user's request history, most recent first
type HistoryEntry struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Date       time.Time `json:"date"`
	VideoCount int       `json:"videoCount"`
}

// Favorite is a bookmarked channel, unique by ID
type Favorite struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
