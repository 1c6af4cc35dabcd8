package db

import (
	"net/url"
	"strings"
	"time"
)

// Cheer is a single displayable feed item. URL is its identity in the seen-set.
type Cheer struct {
	URL       string     `gorm:"primaryKey" json:"url"`
	Title     string     `json:"title"`
	Permalink string     `gorm:"index" json:"permalink"`
	Seen      bool       `gorm:"index;default:false" json:"seen"`
	SeenAt    *time.Time `json:"seen_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// MediaType is the file extension of the cheer's URL, without the dot.
// It is derived on every call and never stored.
func (c Cheer) MediaType() string {
	return MediaTypeOf(c.URL)
}

// MediaTypeOf returns the substring after the last '.' of the last path
// segment of rawURL, or "" when the segment has no extension.
func MediaTypeOf(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	} else {
		if i := strings.IndexAny(p, "?#"); i >= 0 {
			p = p[:i]
		}
	}
	if i := strings.LastIndex(p, "/"); i >= 0 {
		p = p[i+1:]
	}
	i := strings.LastIndex(p, ".")
	if i < 0 {
		return ""
	}
	return p[i+1:]
}

// SavedCheer is a favorite kept locally with its image bytes.
type SavedCheer struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Title     string    `json:"title"`
	URL       string    `gorm:"index" json:"url"`
	Permalink string    `json:"permalink"`
	ImageData []byte    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}
