package forum

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    username TEXT NOT NULL UNIQUE,
    email TEXT NOT NULL DEFAULT '',
    hash BLOB NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    admin INTEGER NOT NULL DEFAULT 0,
    last_login INTEGER
);
CREATE TABLE IF NOT EXISTS boards (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE,
    description TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS topics (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    board_id INTEGER NOT NULL REFERENCES boards(id) ON DELETE CASCADE,
    subject TEXT NOT NULL,
    starter_id TEXT NOT NULL REFERENCES users(id),
    views INTEGER NOT NULL DEFAULT 0,
    last_updated INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS posts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    topic_id INTEGER NOT NULL REFERENCES topics(id) ON DELETE CASCADE,
    message TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    created_by TEXT NOT NULL REFERENCES users(id),
    updated_at INTEGER,
    updated_by TEXT REFERENCES users(id)
);
CREATE INDEX IF NOT EXISTS idx_topics_on_board_id ON topics(board_id, last_updated);
CREATE INDEX IF NOT EXISTS idx_posts_on_topic_id ON posts(topic_id, id);
`

// SQLiteDatabase is the embedded Store, used for local development and tests.
// Timestamps are stored as unix microseconds.
type SQLiteDatabase struct {
	db *sql.DB
}

// NewSQLiteDatabase opens dsn, which may be ":memory:".
func NewSQLiteDatabase(dsn string) (*SQLiteDatabase, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// an in-memory database lives and dies with its connection
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign_keys: %w", err)
	}
	return &SQLiteDatabase{db: db}, nil
}

func (s *SQLiteDatabase) CreateTables(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteSchema)
	return err
}

func (s *SQLiteDatabase) Close() {
	_ = s.db.Close()
}

func micros(t time.Time) int64 {
	return t.UnixMicro()
}

func fromMicros(us int64) time.Time {
	return time.UnixMicro(us).UTC()
}

func sqliteError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
		return fmt.Errorf("%w: %v", ErrDuplicate, se)
	}
	return err
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func affected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteDatabase) CreateBoard(ctx context.Context, board *Board) error {
	res, err := s.db.ExecContext(ctx, `INSERT INTO boards (name, description) VALUES (?, ?)`, board.Name, board.Description)
	if err != nil {
		return sqliteError(err)
	}
	board.ID, err = res.LastInsertId()
	return err
}

func (s *SQLiteDatabase) GetBoard(ctx context.Context, id int64) (*Board, error) {
	var board Board
	err := s.db.QueryRowContext(ctx, `SELECT id, name, description FROM boards WHERE id = ?`, id).
		Scan(&board.ID, &board.Name, &board.Description)
	if err != nil {
		return nil, notFound(err)
	}
	return &board, nil
}

func (s *SQLiteDatabase) ListBoards(ctx context.Context) ([]BoardSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT b.id, b.name, b.description,
        (SELECT COUNT(*) FROM topics t WHERE t.board_id = b.id),
        (SELECT COUNT(*) FROM posts p JOIN topics t ON t.id = p.topic_id WHERE t.board_id = b.id)
      FROM boards b
      ORDER BY b.name`)
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
	// the single connection must be free before the last post queries run
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range boards {
		var p PostSummary
		var created int64
		err := s.db.QueryRowContext(ctx, `SELECT p.id, p.topic_id, u.username, p.created_at
            FROM posts p
            JOIN topics t ON t.id = p.topic_id
            JOIN users u ON u.id = p.created_by
            WHERE t.board_id = ?
            ORDER BY p.id DESC
            LIMIT 1`, boards[i].ID).Scan(&p.ID, &p.TopicID, &p.Author, &created)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, err
		}
		p.CreatedAt = fromMicros(created)
		boards[i].LastPost = &p
	}
	return boards, nil
}

func (s *SQLiteDatabase) CreateTopic(ctx context.Context, topic *Topic, first *Post) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `INSERT INTO topics (board_id, subject, starter_id, last_updated) VALUES (?, ?, ?, ?)`,
		topic.BoardID, topic.Subject, topic.StarterID, micros(topic.LastUpdated))
	if err != nil {
		return fmt.Errorf("insert topic: %w", err)
	}
	if topic.ID, err = res.LastInsertId(); err != nil {
		return err
	}
	first.TopicID = topic.ID
	if err := sqliteInsertPost(ctx, tx, first); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteDatabase) GetTopic(ctx context.Context, boardID, topicID int64) (*Topic, error) {
	var t Topic
	var last int64
	err := s.db.QueryRowContext(ctx, `SELECT t.id, t.board_id, t.subject, t.starter_id, u.username, t.views, t.last_updated
        FROM topics t
        JOIN users u ON u.id = t.starter_id
        WHERE t.board_id = ? AND t.id = ?`, boardID, topicID).
		Scan(&t.ID, &t.BoardID, &t.Subject, &t.StarterID, &t.Starter, &t.Views, &last)
	if err != nil {
		return nil, notFound(err)
	}
	t.LastUpdated = fromMicros(last)
	return &t, nil
}

func (s *SQLiteDatabase) ListTopics(ctx context.Context, boardID int64, page, pageSize int) ([]TopicSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT t.id, t.board_id, t.subject, t.starter_id, u.username, t.views, t.last_updated,
            COUNT(p.id) - 1
        FROM topics t
        JOIN users u ON u.id = t.starter_id
        LEFT JOIN posts p ON p.topic_id = t.id
        WHERE t.board_id = ?
        GROUP BY t.id
        ORDER BY t.last_updated DESC, t.id DESC
        LIMIT ? OFFSET ?`, boardID, pageSize, offset(page, pageSize))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var topics []TopicSummary
	for rows.Next() {
		var t TopicSummary
		var last int64
		if err := rows.Scan(&t.ID, &t.BoardID, &t.Subject, &t.StarterID, &t.Starter, &t.Views, &last, &t.Replies); err != nil {
			return nil, err
		}
		t.LastUpdated = fromMicros(last)
		topics = append(topics, t)
	}
	return topics, rows.Err()
}

func (s *SQLiteDatabase) CountTopics(ctx context.Context, boardID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM topics WHERE board_id = ?`, boardID).Scan(&count)
	return count, err
}

func (s *SQLiteDatabase) IncrementTopicViews(ctx context.Context, topicID int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE topics SET views = views + 1 WHERE id = ?`, topicID)
	if err != nil {
		return err
	}
	return affected(res)
}

func sqliteInsertPost(ctx context.Context, tx *sql.Tx, post *Post) error {
	res, err := tx.ExecContext(ctx, `INSERT INTO posts (topic_id, message, created_at, created_by) VALUES (?, ?, ?, ?)`,
		post.TopicID, post.Message, micros(post.CreatedAt), post.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	post.ID, err = res.LastInsertId()
	return err
}

func (s *SQLiteDatabase) CreateReply(ctx context.Context, post *Post) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := sqliteInsertPost(ctx, tx, post); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE topics SET last_updated = MAX(last_updated, ?) WHERE id = ?`,
		micros(post.CreatedAt), post.TopicID)
	if err != nil {
		return fmt.Errorf("touch topic: %w", err)
	}
	if err := affected(res); err != nil {
		return err
	}
	return tx.Commit()
}

type postScanner interface {
	Scan(dest ...any) error
}

func scanSQLitePost(row postScanner) (*Post, error) {
	var p Post
	var created int64
	var updatedAt sql.NullInt64
	var updatedBy sql.NullString
	if err := row.Scan(&p.ID, &p.TopicID, &p.Message, &created, &p.CreatedBy, &p.Author, &updatedAt, &updatedBy); err != nil {
		return nil, err
	}
	p.CreatedAt = fromMicros(created)
	if updatedAt.Valid {
		t := fromMicros(updatedAt.Int64)
		p.UpdatedAt = &t
	}
	if updatedBy.Valid {
		p.UpdatedBy = &updatedBy.String
	}
	return &p, nil
}

func (s *SQLiteDatabase) GetPost(ctx context.Context, topicID, postID int64) (*Post, error) {
	row := s.db.QueryRowContext(ctx, `SELECT p.id, p.topic_id, p.message, p.created_at, p.created_by, u.username, p.updated_at, p.updated_by
        FROM posts p
        JOIN users u ON u.id = p.created_by
        WHERE p.topic_id = ? AND p.id = ?`, topicID, postID)
	p, err := scanSQLitePost(row)
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

func (s *SQLiteDatabase) UpdatePost(ctx context.Context, post *Post) error {
	var updatedAt sql.NullInt64
	if post.UpdatedAt != nil {
		updatedAt = sql.NullInt64{Int64: micros(*post.UpdatedAt), Valid: true}
	}
	var updatedBy sql.NullString
	if post.UpdatedBy != nil {
		updatedBy = sql.NullString{String: *post.UpdatedBy, Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `UPDATE posts SET message = ?, updated_at = ?, updated_by = ? WHERE id = ?`,
		post.Message, updatedAt, updatedBy, post.ID)
	if err != nil {
		return err
	}
	return affected(res)
}

func (s *SQLiteDatabase) ListPosts(ctx context.Context, topicID int64, page, pageSize int) ([]Post, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT p.id, p.topic_id, p.message, p.created_at, p.created_by, u.username, p.updated_at, p.updated_by
        FROM posts p
        JOIN users u ON u.id = p.created_by
        WHERE p.topic_id = ?
        ORDER BY p.id ASC
        LIMIT ? OFFSET ?`, topicID, pageSize, offset(page, pageSize))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var posts []Post
	for rows.Next() {
		p, err := scanSQLitePost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, *p)
	}
	return posts, rows.Err()
}

func (s *SQLiteDatabase) CountPosts(ctx context.Context, topicID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts WHERE topic_id = ?`, topicID).Scan(&count)
	return count, err
}

func (s *SQLiteDatabase) PostPosition(ctx context.Context, topicID, postID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts WHERE topic_id = ? AND id <= ?`, topicID, postID).Scan(&count)
	return count, err
}

func (s *SQLiteDatabase) CreateUser(ctx context.Context, user *User) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO users (id, username, email, hash, created_at, updated_at, admin)
        VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Username, user.Email, user.Hash, micros(user.Created), micros(user.Updated), user.Admin)
	return sqliteError(err)
}

func (s *SQLiteDatabase) getUser(ctx context.Context, where string, arg any) (*User, error) {
	var user User
	var created, updated int64
	var lastLogin sql.NullInt64
	err := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE "+where+" = ?", arg).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.Hash,
		&created,
		&updated,
		&user.Admin,
		&lastLogin,
	)
	if err != nil {
		return nil, notFound(err)
	}
	user.Created = fromMicros(created)
	user.Updated = fromMicros(updated)
	if lastLogin.Valid {
		t := fromMicros(lastLogin.Int64)
		user.LastLogin = &t
	}
	return &user, nil
}

func (s *SQLiteDatabase) GetUserByID(ctx context.Context, id string) (*User, error) {
	return s.getUser(ctx, "id", id)
}

func (s *SQLiteDatabase) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return s.getUser(ctx, "username", username)
}

func (s *SQLiteDatabase) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET last_login = ? WHERE id = ?`, micros(at), id)
	return err
}

var _ Store = (*SQLiteDatabase)(nil)
