package forum

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteDatabase_Boards(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	john := seedUser(t, store, "john", "secret123")

	django := seedBoard(t, store, "Django")
	python := seedBoard(t, store, "Python")

	err := store.CreateBoard(ctx, &Board{Name: "Django"})
	assert.ErrorIs(t, err, ErrDuplicate)

	got, err := store.GetBoard(ctx, django.ID)
	require.NoError(t, err)
	assert.Equal(t, "Django", got.Name)

	_, err = store.GetBoard(ctx, 99)
	assert.ErrorIs(t, err, ErrNotFound)

	topic := seedTopic(t, store, django, john, 3)

	boards, err := store.ListBoards(ctx)
	require.NoError(t, err)
	require.Len(t, boards, 2)

	assert.Equal(t, django.ID, boards[0].ID)
	assert.Equal(t, 1, boards[0].Topics)
	assert.Equal(t, 3, boards[0].Posts)
	require.NotNil(t, boards[0].LastPost)
	assert.Equal(t, topic.ID, boards[0].LastPost.TopicID)
	assert.Equal(t, "john", boards[0].LastPost.Author)

	assert.Equal(t, python.ID, boards[1].ID)
	assert.Zero(t, boards[1].Topics)
	assert.Nil(t, boards[1].LastPost)
}

func TestSQLiteDatabase_TopicsOrderedByActivity(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	john := seedUser(t, store, "john", "secret123")
	board := seedBoard(t, store, "Django")

	older := seedTopic(t, store, board, john, 1)
	newer := seedTopic(t, store, board, john, 4)

	topics, err := store.ListTopics(ctx, board.ID, 1, 10)
	require.NoError(t, err)
	require.Len(t, topics, 2)
	assert.Equal(t, newer.ID, topics[0].ID)
	assert.Equal(t, 3, topics[0].Replies)
	assert.Equal(t, older.ID, topics[1].ID)
	assert.Equal(t, 0, topics[1].Replies)
	assert.Equal(t, "john", topics[1].Starter)

	// a reply moves the older topic to the top
	reply := &Post{TopicID: older.ID, Message: "bump", CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), CreatedBy: john.ID}
	require.NoError(t, store.CreateReply(ctx, reply))
	topics, err = store.ListTopics(ctx, board.ID, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, older.ID, topics[0].ID)

	count, err := store.CountTopics(ctx, board.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	topics, err = store.ListTopics(ctx, board.ID, 2, 1)
	require.NoError(t, err)
	require.Len(t, topics, 1)
	assert.Equal(t, newer.ID, topics[0].ID)
}

func TestSQLiteDatabase_CreateReply(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	john := seedUser(t, store, "john", "secret123")
	board := seedBoard(t, store, "Django")
	topic := seedTopic(t, store, board, john, 1)

	at := topic.LastUpdated.Add(time.Hour)
	post := &Post{TopicID: topic.ID, Message: "Hello, world!", CreatedAt: at, CreatedBy: john.ID}
	require.NoError(t, store.CreateReply(ctx, post))
	assert.NotZero(t, post.ID)

	got, err := store.GetTopic(ctx, board.ID, topic.ID)
	require.NoError(t, err)
	assert.True(t, got.LastUpdated.Equal(at), "last_updated = %v, want %v", got.LastUpdated, at)

	// an older timestamp never moves last_updated backwards
	stale := &Post{TopicID: topic.ID, Message: "late", CreatedAt: at.Add(-2 * time.Hour), CreatedBy: john.ID}
	require.NoError(t, store.CreateReply(ctx, stale))
	got, err = store.GetTopic(ctx, board.ID, topic.ID)
	require.NoError(t, err)
	assert.True(t, got.LastUpdated.Equal(at))

	count, err := store.CountPosts(ctx, topic.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	pos, err := store.PostPosition(ctx, topic.ID, post.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, pos)

	err = store.CreateReply(ctx, &Post{TopicID: 404, Message: "lost", CreatedAt: at, CreatedBy: john.ID})
	assert.Error(t, err)
	count, err = store.CountPosts(ctx, 404)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSQLiteDatabase_Posts(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	john := seedUser(t, store, "john", "secret123")
	jane := seedUser(t, store, "jane", "secret123")
	board := seedBoard(t, store, "Django")
	topic := seedTopic(t, store, board, john, 12)

	posts, err := store.ListPosts(ctx, topic.ID, 1, 10)
	require.NoError(t, err)
	require.Len(t, posts, 10)
	assert.Equal(t, "Lorem ipsum dolor sit amet", posts[0].Message)
	for i := 1; i < len(posts); i++ {
		assert.Less(t, posts[i-1].ID, posts[i].ID)
	}

	posts, err = store.ListPosts(ctx, topic.ID, 2, 10)
	require.NoError(t, err)
	require.Len(t, posts, 2)

	post := posts[1]
	assert.Nil(t, post.UpdatedAt)
	now := time.Now().UTC()
	post.Message = "edited"
	post.UpdatedAt = &now
	post.UpdatedBy = &jane.ID
	require.NoError(t, store.UpdatePost(ctx, &post))

	got, err := store.GetPost(ctx, topic.ID, post.ID)
	require.NoError(t, err)
	assert.Equal(t, "edited", got.Message)
	assert.Equal(t, "john", got.Author)
	require.NotNil(t, got.UpdatedAt)
	assert.WithinDuration(t, now, *got.UpdatedAt, time.Millisecond)
	require.NotNil(t, got.UpdatedBy)
	assert.Equal(t, jane.ID, *got.UpdatedBy)

	_, err = store.GetPost(ctx, topic.ID+1, post.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteDatabase_Views(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	john := seedUser(t, store, "john", "secret123")
	board := seedBoard(t, store, "Django")
	topic := seedTopic(t, store, board, john, 1)

	require.NoError(t, store.IncrementTopicViews(ctx, topic.ID))
	require.NoError(t, store.IncrementTopicViews(ctx, topic.ID))
	got, err := store.GetTopic(ctx, board.ID, topic.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Views)

	assert.ErrorIs(t, store.IncrementTopicViews(ctx, 999), ErrNotFound)
}

func TestSQLiteDatabase_Users(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	john := seedUser(t, store, "john", "secret123")

	dup := NewUser("john", "other@doe.com", false)
	dup.Hash = []byte("x")
	assert.ErrorIs(t, store.CreateUser(ctx, dup), ErrDuplicate)

	got, err := store.GetUserByUsername(ctx, "john")
	require.NoError(t, err)
	assert.Equal(t, john.ID, got.ID)
	assert.Nil(t, got.LastLogin)
	ok, err := got.PasswordMatches("secret123")
	require.NoError(t, err)
	assert.True(t, ok)

	at := time.Now().UTC()
	require.NoError(t, store.TouchLastLogin(ctx, john.ID, at))
	got, err = store.GetUserByID(ctx, john.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastLogin)
	assert.WithinDuration(t, at, *got.LastLogin, time.Millisecond)

	_, err = store.GetUserByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}
