// forum/models.go
package forum

import (
	"time"
)

// Board groups topics under a common subject.
type Board struct {
	ID          int64  `json:"id" db:"id"`
	Name        string `json:"name" db:"name"`
	Description string `json:"description" db:"description"`
}

// BoardSummary is a board as shown on the home page.
type BoardSummary struct {
	Board
	Topics   int          `json:"topics"`
	Posts    int          `json:"posts"`
	LastPost *PostSummary `json:"last_post"`
}

// PostSummary points at a post without carrying its message.
type PostSummary struct {
	ID        int64     `json:"id"`
	TopicID   int64     `json:"topic_id"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"created_at"`
}

// Topic is a thread inside a board. Its post count is never stored.
type Topic struct {
	ID          int64     `json:"id" db:"id"`
	BoardID     int64     `json:"board_id" db:"board_id"`
	Subject     string    `json:"subject" db:"subject"`
	StarterID   string    `json:"starter_id" db:"starter_id"`
	Starter     string    `json:"starter" db:"-"`
	Views       int       `json:"views" db:"views"`
	LastUpdated time.Time `json:"last_updated" db:"last_updated"`
}

// TopicSummary is a row of the board topic listing.
type TopicSummary struct {
	Topic
	Replies int `json:"replies"`
}

// Post is one message in a topic. Posts are ordered by ID.
type Post struct {
	ID        int64      `json:"id" db:"id"`
	TopicID   int64      `json:"topic_id" db:"topic_id"`
	Message   string     `json:"message" db:"message"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	CreatedBy string     `json:"created_by" db:"created_by"`
	Author    string     `json:"author" db:"-"`
	UpdatedAt *time.Time `json:"updated_at" db:"updated_at"`
	UpdatedBy *string    `json:"updated_by" db:"updated_by"`
}
