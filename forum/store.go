package forum

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a board, topic, post or user does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a unique column already holds the value.
	ErrDuplicate = errors.New("already exists")
)

// Store is the persistence layer used by the handlers. Both the Postgres
// Database and the SQLiteDatabase implement it.
type Store interface {
	CreateTables(ctx context.Context) error
	Close()

	CreateBoard(ctx context.Context, board *Board) error
	GetBoard(ctx context.Context, id int64) (*Board, error)
	ListBoards(ctx context.Context) ([]BoardSummary, error)

	// CreateTopic stores the topic and its opening post in one transaction.
	CreateTopic(ctx context.Context, topic *Topic, first *Post) error
	GetTopic(ctx context.Context, boardID, topicID int64) (*Topic, error)
	ListTopics(ctx context.Context, boardID int64, page, pageSize int) ([]TopicSummary, error)
	CountTopics(ctx context.Context, boardID int64) (int, error)
	IncrementTopicViews(ctx context.Context, topicID int64) error

	// CreateReply appends post to its topic and moves the topic's
	// last_updated forward to post.CreatedAt, atomically.
	CreateReply(ctx context.Context, post *Post) error
	GetPost(ctx context.Context, topicID, postID int64) (*Post, error)
	UpdatePost(ctx context.Context, post *Post) error
	ListPosts(ctx context.Context, topicID int64, page, pageSize int) ([]Post, error)
	CountPosts(ctx context.Context, topicID int64) (int, error)
	// PostPosition is the 1-based position of a post in its topic.
	PostPosition(ctx context.Context, topicID, postID int64) (int, error)

	CreateUser(ctx context.Context, user *User) error
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
}

func offset(page, pageSize int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * pageSize
}
