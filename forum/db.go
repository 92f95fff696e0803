// forum/db.go
package forum

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id UUID PRIMARY KEY,
    username TEXT NOT NULL UNIQUE,
    email TEXT NOT NULL DEFAULT '',
    hash BYTEA NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    admin BOOLEAN NOT NULL DEFAULT FALSE,
    last_login TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS boards (
    id BIGSERIAL PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    description TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS topics (
    id BIGSERIAL PRIMARY KEY,
    board_id BIGINT NOT NULL,
    subject TEXT NOT NULL,
    starter_id UUID NOT NULL REFERENCES users(id),
    views INTEGER NOT NULL DEFAULT 0,
    last_updated TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT fk_board
        FOREIGN KEY(board_id)
        REFERENCES boards(id)
        ON DELETE CASCADE
);
CREATE TABLE IF NOT EXISTS posts (
    id BIGSERIAL PRIMARY KEY,
    topic_id BIGINT NOT NULL,
    message TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    created_by UUID NOT NULL REFERENCES users(id),
    updated_at TIMESTAMPTZ,
    updated_by UUID REFERENCES users(id),
    CONSTRAINT fk_topic
        FOREIGN KEY(topic_id)
        REFERENCES topics(id)
        ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_topics_on_board_id ON topics(board_id, last_updated DESC);
CREATE INDEX IF NOT EXISTS idx_posts_on_topic_id ON posts(topic_id, id);
`

// Database is the Postgres Store.
type Database struct {
	pool *pgxpool.Pool
}

func NewDatabase(ctx context.Context, connectionString string) (*Database, error) {
	pool, err := pgxpool.New(ctx, connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Database{pool: pool}, nil
}

func (d *Database) CreateTables(ctx context.Context) error {
	_, err := d.pool.Exec(ctx, schema)
	return err
}

func (d *Database) Close() {
	d.pool.Close()
}

func pgError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}

// --- Board Functions ---

func (d *Database) CreateBoard(ctx context.Context, board *Board) error {
	query := `INSERT INTO boards (name, description) VALUES ($1, $2) RETURNING id`
	err := d.pool.QueryRow(ctx, query, board.Name, board.Description).Scan(&board.ID)
	return pgError(err)
}

func (d *Database) GetBoard(ctx context.Context, id int64) (*Board, error) {
	var board Board
	query := `SELECT id, name, description FROM boards WHERE id = $1`
	err := d.pool.QueryRow(ctx, query, id).Scan(&board.ID, &board.Name, &board.Description)
	if err != nil {
		return nil, pgError(err)
	}
	return &board, nil
}

func (d *Database) ListBoards(ctx context.Context) ([]BoardSummary, error) {
	query := `SELECT b.id, b.name, b.description,
                (SELECT COUNT(*) FROM topics t WHERE t.board_id = b.id),
                (SELECT COUNT(*) FROM posts p JOIN topics t ON t.id = p.topic_id WHERE t.board_id = b.id)
              FROM boards b
              ORDER BY b.name`
	rows, err := d.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	var boards []BoardSummary
	for rows.Next() {
		var b BoardSummary
		if err := rows.Scan(&b.ID, &b.Name, &b.Description, &b.Topics, &b.Posts); err != nil {
			rows.Close()
			return nil, err
		}
		boards = append(boards, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range boards {
		last, err := d.lastPost(ctx, boards[i].ID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		boards[i].LastPost = last
	}
	return boards, nil
}

func (d *Database) lastPost(ctx context.Context, boardID int64) (*PostSummary, error) {
	var p PostSummary
	query := `SELECT p.id, p.topic_id, u.username, p.created_at
              FROM posts p
              JOIN topics t ON t.id = p.topic_id
              JOIN users u ON u.id = p.created_by
              WHERE t.board_id = $1
              ORDER BY p.id DESC
              LIMIT 1`
	err := d.pool.QueryRow(ctx, query, boardID).Scan(&p.ID, &p.TopicID, &p.Author, &p.CreatedAt)
	if err != nil {
		return nil, pgError(err)
	}
	return &p, nil
}

// --- Topic Functions ---

func (d *Database) CreateTopic(ctx context.Context, topic *Topic, first *Post) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `INSERT INTO topics (board_id, subject, starter_id, last_updated) VALUES ($1, $2, $3, $4) RETURNING id`
	if err := tx.QueryRow(ctx, query, topic.BoardID, topic.Subject, topic.StarterID, topic.LastUpdated).Scan(&topic.ID); err != nil {
		return fmt.Errorf("insert topic: %w", pgError(err))
	}
	first.TopicID = topic.ID
	if err := insertPost(ctx, tx, first); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (d *Database) GetTopic(ctx context.Context, boardID, topicID int64) (*Topic, error) {
	var t Topic
	query := `SELECT t.id, t.board_id, t.subject, t.starter_id, u.username, t.views, t.last_updated
              FROM topics t
              JOIN users u ON u.id = t.starter_id
              WHERE t.board_id = $1 AND t.id = $2`
	err := d.pool.QueryRow(ctx, query, boardID, topicID).Scan(
		&t.ID, &t.BoardID, &t.Subject, &t.StarterID, &t.Starter, &t.Views, &t.LastUpdated)
	if err != nil {
		return nil, pgError(err)
	}
	return &t, nil
}

func (d *Database) ListTopics(ctx context.Context, boardID int64, page, pageSize int) ([]TopicSummary, error) {
	query := `SELECT t.id, t.board_id, t.subject, t.starter_id, u.username, t.views, t.last_updated,
                COUNT(p.id) - 1
              FROM topics t
              JOIN users u ON u.id = t.starter_id
              LEFT JOIN posts p ON p.topic_id = t.id
              WHERE t.board_id = $1
              GROUP BY t.id, u.id
              ORDER BY t.last_updated DESC, t.id DESC
              LIMIT $2 OFFSET $3`
	rows, err := d.pool.Query(ctx, query, boardID, pageSize, offset(page, pageSize))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var topics []TopicSummary
	for rows.Next() {
		var t TopicSummary
		if err := rows.Scan(&t.ID, &t.BoardID, &t.Subject, &t.StarterID, &t.Starter, &t.Views, &t.LastUpdated, &t.Replies); err != nil {
			return nil, err
		}
		topics = append(topics, t)
	}
	return topics, rows.Err()
}

func (d *Database) CountTopics(ctx context.Context, boardID int64) (int, error) {
	var count int
	err := d.pool.QueryRow(ctx, "SELECT COUNT(*) FROM topics WHERE board_id = $1", boardID).Scan(&count)
	return count, err
}

func (d *Database) IncrementTopicViews(ctx context.Context, topicID int64) error {
	tag, err := d.pool.Exec(ctx, "UPDATE topics SET views = views + 1 WHERE id = $1", topicID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Post Functions ---

func insertPost(ctx context.Context, tx pgx.Tx, post *Post) error {
	query := `INSERT INTO posts (topic_id, message, created_at, created_by) VALUES ($1, $2, $3, $4) RETURNING id`
	err := tx.QueryRow(ctx, query, post.TopicID, post.Message, post.CreatedAt, post.CreatedBy).Scan(&post.ID)
	if err != nil {
		return fmt.Errorf("insert post: %w", pgError(err))
	}
	return nil
}

func (d *Database) CreateReply(ctx context.Context, post *Post) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := insertPost(ctx, tx, post); err != nil {
		return err
	}
	tag, err := tx.Exec(ctx,
		`UPDATE topics SET last_updated = GREATEST(last_updated, $2) WHERE id = $1`,
		post.TopicID, post.CreatedAt)
	if err != nil {
		return fmt.Errorf("touch topic: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return tx.Commit(ctx)
}

func (d *Database) GetPost(ctx context.Context, topicID, postID int64) (*Post, error) {
	var p Post
	query := `SELECT p.id, p.topic_id, p.message, p.created_at, p.created_by, u.username, p.updated_at, p.updated_by
              FROM posts p
              JOIN users u ON u.id = p.created_by
              WHERE p.topic_id = $1 AND p.id = $2`
	err := d.pool.QueryRow(ctx, query, topicID, postID).Scan(
		&p.ID, &p.TopicID, &p.Message, &p.CreatedAt, &p.CreatedBy, &p.Author, &p.UpdatedAt, &p.UpdatedBy)
	if err != nil {
		return nil, pgError(err)
	}
	return &p, nil
}

func (d *Database) UpdatePost(ctx context.Context, post *Post) error {
	query := `UPDATE posts SET message = $2, updated_at = $3, updated_by = $4 WHERE id = $1`
	tag, err := d.pool.Exec(ctx, query, post.ID, post.Message, post.UpdatedAt, post.UpdatedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (d *Database) ListPosts(ctx context.Context, topicID int64, page, pageSize int) ([]Post, error) {
	query := `SELECT p.id, p.topic_id, p.message, p.created_at, p.created_by, u.username, p.updated_at, p.updated_by
              FROM posts p
              JOIN users u ON u.id = p.created_by
              WHERE p.topic_id = $1
              ORDER BY p.id ASC
              LIMIT $2 OFFSET $3`
	rows, err := d.pool.Query(ctx, query, topicID, pageSize, offset(page, pageSize))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var posts []Post
	for rows.Next() {
		var p Post
		if err := rows.Scan(&p.ID, &p.TopicID, &p.Message, &p.CreatedAt, &p.CreatedBy, &p.Author, &p.UpdatedAt, &p.UpdatedBy); err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

func (d *Database) CountPosts(ctx context.Context, topicID int64) (int, error) {
	var count int
	err := d.pool.QueryRow(ctx, "SELECT COUNT(*) FROM posts WHERE topic_id = $1", topicID).Scan(&count)
	return count, err
}

func (d *Database) PostPosition(ctx context.Context, topicID, postID int64) (int, error) {
	var count int
	query := "SELECT COUNT(*) FROM posts WHERE topic_id = $1 AND id <= $2"
	err := d.pool.QueryRow(ctx, query, topicID, postID).Scan(&count)
	return count, err
}

// --- User Functions ---

func (d *Database) CreateUser(ctx context.Context, user *User) error {
	query := `
        INSERT INTO users (id, username, email, hash, created_at, updated_at, admin)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := d.pool.Exec(ctx, query,
		user.ID,
		user.Username,
		user.Email,
		user.Hash,
		user.Created,
		user.Updated,
		user.Admin,
	)
	return pgError(err)
}

const userColumns = `id, username, email, hash, created_at, updated_at, admin, last_login`

func (d *Database) getUser(ctx context.Context, where string, arg any) (*User, error) {
	var user User
	row := d.pool.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE "+where+" = $1", arg)
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.Hash,
		&user.Created,
		&user.Updated,
		&user.Admin,
		&user.LastLogin,
	)
	if err != nil {
		return nil, pgError(err)
	}
	return &user, nil
}

func (d *Database) GetUserByID(ctx context.Context, id string) (*User, error) {
	return d.getUser(ctx, "id", id)
}

func (d *Database) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return d.getUser(ctx, "username", username)
}

func (d *Database) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	_, err := d.pool.Exec(ctx, "UPDATE users SET last_login = $2 WHERE id = $1", id, at)
	return err
}

var _ Store = (*Database)(nil)
