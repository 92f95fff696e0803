// forum/handlers.go
package forum

import (
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const PageSize = 10

// Options tunes listing sizes and password hashing.
type Options struct {
	TopicsPerPage int
	PostsPerPage  int
	HashCost      int
}

// Base is embedded in every view so the layout can show the signed in user.
type Base struct {
	CurrentUser *User
}

type HomeViewData struct {
	Base
	Boards []BoardSummary
}

// TopicsViewData is the data structure for the topics list page.
type TopicsViewData struct {
	Base
	Board      Board
	Topics     []TopicSummary
	Pagination PaginationData
}

// TopicViewData is the data structure for the single topic page.
type TopicViewData struct {
	Base
	Board      Board
	Topic      Topic
	Posts      []Post
	Pagination PaginationData
}

type NewTopicViewData struct {
	Base
	Board Board
	Form  *NewTopicForm
}

type ReplyViewData struct {
	Base
	Board Board
	Topic Topic
	Form  *PostForm
}

type EditPostViewData struct {
	Base
	Board Board
	Topic Topic
	Post  Post
	Form  *PostForm
}

type Handlers struct {
	db        Store
	templates map[string]*template.Template
	Session   *scs.SessionManager
	logger    *zap.Logger
	router    *mux.Router
	urls      URLBuilder
	replies   *ReplyWorkflow
	opts      Options
	now       func() time.Time
}

func NewHandlers(db Store, session *scs.SessionManager, logger *zap.Logger, opts Options) (*Handlers, error) {
	if session == nil {
		session = scs.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.TopicsPerPage < 1 {
		opts.TopicsPerPage = PageSize
	}
	if opts.PostsPerPage < 1 {
		opts.PostsPerPage = PageSize
	}
	if opts.HashCost == 0 {
		opts.HashCost = DefaultHashCost
	}

	router := mux.NewRouter()
	h := &Handlers{
		db:      db,
		Session: session,
		logger:  logger,
		router:  router,
		urls:    muxURLs{router: router},
		opts:    opts,
		now:     func() time.Time { return time.Now().UTC() },
	}
	h.replies = &ReplyWorkflow{
		Store:    db,
		URLs:     h.urls,
		PageSize: opts.PostsPerPage,
		Now:      func() time.Time { return h.now() },
	}
	h.registerRoutes(router)
	if err := h.parseTemplates(); err != nil {
		return nil, err
	}
	return h, nil
}

// Routes returns the full handler chain: sessions, request logging,
// user loading and the router.
func (h *Handlers) Routes() http.Handler {
	return h.Session.LoadAndSave(h.logRequests(h.authenticate(h.router)))
}

// URLs reverses route names for callers outside the package.
func (h *Handlers) URLs() URLBuilder {
	return h.urls
}

func (h *Handlers) serverError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("Request failed",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err))
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

// lookupError answers 404 for ErrNotFound and 500 for anything else.
func (h *Handlers) lookupError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	h.serverError(w, r, err)
}

func (h *Handlers) redirectTo(w http.ResponseWriter, r *http.Request, name string, pairs ...string) {
	target, err := h.urls.BuildURL(name, pairs...)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func pathID(r *http.Request, name string) int64 {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func (h *Handlers) base(r *http.Request) Base {
	return Base{CurrentUser: currentUser(r)}
}

// loadBoard fetches the board named by the request path, writing a
// response and returning nil when it cannot.
func (h *Handlers) loadBoard(w http.ResponseWriter, r *http.Request) *Board {
	board, err := h.db.GetBoard(r.Context(), pathID(r, "board_id"))
	if err != nil {
		h.lookupError(w, r, err)
		return nil
	}
	return board
}

func (h *Handlers) loadTopic(w http.ResponseWriter, r *http.Request) (*Board, *Topic) {
	board := h.loadBoard(w, r)
	if board == nil {
		return nil, nil
	}
	topic, err := h.db.GetTopic(r.Context(), board.ID, pathID(r, "topic_id"))
	if err != nil {
		h.lookupError(w, r, err)
		return nil, nil
	}
	return board, topic
}

func (h *Handlers) home(w http.ResponseWriter, r *http.Request) {
	boards, err := h.db.ListBoards(r.Context())
	if err != nil {
		h.serverError(w, r, fmt.Errorf("list boards: %w", err))
		return
	}
	h.render(w, r, http.StatusOK, "home.html", HomeViewData{Base: h.base(r), Boards: boards})
}

// listTopics pages through a board's topics, most recently active first.
func (h *Handlers) listTopics(w http.ResponseWriter, r *http.Request) {
	board := h.loadBoard(w, r)
	if board == nil {
		return
	}
	ctx := r.Context()

	totalTopics, err := h.db.CountTopics(ctx, board.ID)
	if err != nil {
		h.serverError(w, r, fmt.Errorf("count topics: %w", err))
		return
	}
	page, err := ParsePage(r.URL.Query().Get("page"), totalTopics, h.opts.TopicsPerPage)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	topics, err := h.db.ListTopics(ctx, board.ID, page, h.opts.TopicsPerPage)
	if err != nil {
		h.serverError(w, r, fmt.Errorf("list topics: %w", err))
		return
	}

	h.render(w, r, http.StatusOK, "topics.html", TopicsViewData{
		Base:       h.base(r),
		Board:      *board,
		Topics:     topics,
		Pagination: NewPaginationData(page, totalTopics, h.opts.TopicsPerPage),
	})
}

// newTopic creates a topic together with its opening post.
func (h *Handlers) newTopic(w http.ResponseWriter, r *http.Request) {
	board := h.loadBoard(w, r)
	if board == nil {
		return
	}
	data := NewTopicViewData{Base: h.base(r), Board: *board, Form: &NewTopicForm{}}
	if r.Method != http.MethodPost {
		h.render(w, r, http.StatusOK, "new_topic.html", data)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}
	data.Form = ParseNewTopicForm(r.PostForm)
	if !data.Form.Validate() {
		h.render(w, r, http.StatusOK, "new_topic.html", data)
		return
	}

	user := currentUser(r)
	now := h.now()
	topic := &Topic{
		BoardID:     board.ID,
		Subject:     data.Form.Subject,
		StarterID:   user.ID,
		LastUpdated: now,
	}
	post := &Post{
		Message:   data.Form.Message,
		CreatedAt: now,
		CreatedBy: user.ID,
	}
	if err := h.db.CreateTopic(r.Context(), topic, post); err != nil {
		h.serverError(w, r, fmt.Errorf("create topic: %w", err))
		return
	}
	h.logger.Info("Topic created", zap.Int64("board", board.ID), zap.Int64("topic", topic.ID), zap.String("user", user.Username))
	h.redirectTo(w, r, RouteTopicPosts,
		"board_id", strconv.FormatInt(board.ID, 10),
		"topic_id", strconv.FormatInt(topic.ID, 10))
}

func viewedTopicKey(topicID int64) string {
	return fmt.Sprintf("viewed_topic_%d", topicID)
}

// listPosts shows a page of a topic's posts and counts the first view of
// the topic in each session.
func (h *Handlers) listPosts(w http.ResponseWriter, r *http.Request) {
	board, topic := h.loadTopic(w, r)
	if topic == nil {
		return
	}
	ctx := r.Context()

	totalPosts, err := h.db.CountPosts(ctx, topic.ID)
	if err != nil {
		h.serverError(w, r, fmt.Errorf("count posts: %w", err))
		return
	}
	page, err := ParsePage(r.URL.Query().Get("page"), totalPosts, h.opts.PostsPerPage)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	key := viewedTopicKey(topic.ID)
	if !h.Session.GetBool(ctx, key) {
		if err := h.db.IncrementTopicViews(ctx, topic.ID); err != nil {
			h.serverError(w, r, fmt.Errorf("count topic view: %w", err))
			return
		}
		topic.Views++
		h.Session.Put(ctx, key, true)
	}

	posts, err := h.db.ListPosts(ctx, topic.ID, page, h.opts.PostsPerPage)
	if err != nil {
		h.serverError(w, r, fmt.Errorf("list posts: %w", err))
		return
	}

	h.render(w, r, http.StatusOK, "topic_posts.html", TopicViewData{
		Base:       h.base(r),
		Board:      *board,
		Topic:      *topic,
		Posts:      posts,
		Pagination: NewPaginationData(page, totalPosts, h.opts.PostsPerPage),
	})
}

// replyTopic hands a submitted reply to the ReplyWorkflow and redirects to
// the page where the new post shows up.
func (h *Handlers) replyTopic(w http.ResponseWriter, r *http.Request) {
	board, topic := h.loadTopic(w, r)
	if topic == nil {
		return
	}
	data := ReplyViewData{Base: h.base(r), Board: *board, Topic: *topic, Form: &PostForm{}}
	if r.Method != http.MethodPost {
		h.render(w, r, http.StatusOK, "reply_topic.html", data)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}
	user := currentUser(r)
	result, err := h.replies.Reply(r.Context(), topic, ParsePostForm(r.PostForm), user)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	if !result.Created() {
		data.Form = result.Form
		h.render(w, r, http.StatusOK, "reply_topic.html", data)
		return
	}
	h.logger.Info("Reply posted",
		zap.Int64("topic", topic.ID),
		zap.Int64("post", result.Post.ID),
		zap.String("user", user.Username))
	http.Redirect(w, r, result.Target, http.StatusSeeOther)
}

// editPost lets the author of a post change its message. Anyone else gets
// a 404, as if the post did not exist.
func (h *Handlers) editPost(w http.ResponseWriter, r *http.Request) {
	board, topic := h.loadTopic(w, r)
	if topic == nil {
		return
	}
	ctx := r.Context()
	user := currentUser(r)

	post, err := h.db.GetPost(ctx, topic.ID, pathID(r, "post_id"))
	if err != nil {
		h.lookupError(w, r, err)
		return
	}
	if post.CreatedBy != user.ID {
		http.NotFound(w, r)
		return
	}

	data := EditPostViewData{
		Base:  h.base(r),
		Board: *board,
		Topic: *topic,
		Post:  *post,
		Form:  &PostForm{Message: post.Message},
	}
	if r.Method != http.MethodPost {
		h.render(w, r, http.StatusOK, "edit_post.html", data)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}
	data.Form = ParsePostForm(r.PostForm)
	if !data.Form.Validate() {
		h.render(w, r, http.StatusOK, "edit_post.html", data)
		return
	}

	now := h.now()
	post.Message = data.Form.Message
	post.UpdatedAt = &now
	post.UpdatedBy = &user.ID
	if err := h.db.UpdatePost(ctx, post); err != nil {
		h.serverError(w, r, fmt.Errorf("update post: %w", err))
		return
	}

	position, err := h.db.PostPosition(ctx, topic.ID, post.ID)
	if err != nil {
		h.serverError(w, r, fmt.Errorf("locate post: %w", err))
		return
	}
	target, err := PostURL(h.urls, board.ID, topic.ID, post.ID, LocatePage(position, h.opts.PostsPerPage))
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}
