package forum

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// ReplyWorkflow appends replies to topics and works out where the new
// post can be seen.
type ReplyWorkflow struct {
	Store    Store
	URLs     URLBuilder
	PageSize int
	Now      func() time.Time
}

// ReplyResult is the outcome of a reply. When the form did not validate,
// Post is nil, Target is empty and Form.Errors says why.
type ReplyResult struct {
	Form   *PostForm
	Post   *Post
	Target string
}

func (r *ReplyResult) Created() bool {
	return r.Post != nil
}

func (w *ReplyWorkflow) now() time.Time {
	if w.Now != nil {
		return w.Now().UTC()
	}
	return time.Now().UTC()
}

// Reply validates form and, when it is valid, stores the post and bumps
// the topic's last activity in one transaction. The returned target is the
// topic page holding the new post, anchored on it.
func (w *ReplyWorkflow) Reply(ctx context.Context, topic *Topic, form *PostForm, author *User) (*ReplyResult, error) {
	if !form.Validate() {
		return &ReplyResult{Form: form}, nil
	}

	now := w.now()
	post := &Post{
		TopicID:   topic.ID,
		Message:   form.Message,
		CreatedAt: now,
		CreatedBy: author.ID,
		Author:    author.Username,
	}
	if err := w.Store.CreateReply(ctx, post); err != nil {
		return nil, fmt.Errorf("create reply: %w", err)
	}
	if now.After(topic.LastUpdated) {
		topic.LastUpdated = now
	}

	count, err := w.Store.CountPosts(ctx, topic.ID)
	if err != nil {
		return nil, fmt.Errorf("count posts: %w", err)
	}
	target, err := PostURL(w.URLs, topic.BoardID, topic.ID, post.ID, LocatePage(count, w.PageSize))
	if err != nil {
		return nil, err
	}
	return &ReplyResult{Form: form, Post: post, Target: target}, nil
}

// PostURL links to a post on the given page of its topic.
func PostURL(urls URLBuilder, boardID, topicID, postID int64, page int) (string, error) {
	path, err := urls.BuildURL(RouteTopicPosts,
		"board_id", strconv.FormatInt(boardID, 10),
		"topic_id", strconv.FormatInt(topicID, 10))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s?page=%d#%d", path, page, postID), nil
}
