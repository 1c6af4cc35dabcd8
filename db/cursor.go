package db

import "time"

// FeedCursor remembers how far a listing was paged, so paging survives restarts.
// An empty After means the next fetch starts from the top.
type FeedCursor struct {
	FeedURL   string    `gorm:"primaryKey" json:"feed_url"`
	After     string    `gorm:"column:after_token" json:"after"`
	UpdatedAt time.Time `json:"updated_at"`
}
