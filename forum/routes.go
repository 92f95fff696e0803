package forum

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
)

// Route names, used to reverse URLs.
const (
	RouteHome        = "home"
	RouteBoardTopics = "board_topics"
	RouteNewTopic    = "new_topic"
	RouteTopicPosts  = "topic_posts"
	RouteReplyTopic  = "reply_topic"
	RouteEditPost    = "edit_post"
	RouteSignup      = "signup"
	RouteLogin       = "login"
	RouteLogout      = "logout"
)

// URLBuilder reverses a named route. pairs alternate variable names and values.
type URLBuilder interface {
	BuildURL(name string, pairs ...string) (string, error)
}

type muxURLs struct {
	router *mux.Router
}

func (u muxURLs) BuildURL(name string, pairs ...string) (string, error) {
	route := u.router.Get(name)
	if route == nil {
		return "", fmt.Errorf("no route named %q", name)
	}
	built, err := route.URL(pairs...)
	if err != nil {
		return "", fmt.Errorf("build %s url: %w", name, err)
	}
	return built.String(), nil
}

func (h *Handlers) registerRoutes(r *mux.Router) {
	r.HandleFunc("/", h.home).Methods(http.MethodGet).Name(RouteHome)
	r.HandleFunc("/signup/", h.signup).Methods(http.MethodGet, http.MethodPost).Name(RouteSignup)
	r.HandleFunc("/login/", h.login).Methods(http.MethodGet, http.MethodPost).Name(RouteLogin)
	r.HandleFunc("/logout/", h.logout).Methods(http.MethodPost).Name(RouteLogout)

	b := r.PathPrefix("/boards/{board_id:[0-9]+}").Subrouter()
	b.HandleFunc("/", h.listTopics).Methods(http.MethodGet).Name(RouteBoardTopics)
	b.HandleFunc("/new/", h.requireLogin(h.newTopic)).Methods(http.MethodGet, http.MethodPost).Name(RouteNewTopic)
	b.HandleFunc("/topics/{topic_id:[0-9]+}/", h.listPosts).Methods(http.MethodGet).Name(RouteTopicPosts)
	b.HandleFunc("/topics/{topic_id:[0-9]+}/reply/", h.requireLogin(h.replyTopic)).
		Methods(http.MethodGet, http.MethodPost).Name(RouteReplyTopic)
	b.HandleFunc("/topics/{topic_id:[0-9]+}/posts/{post_id:[0-9]+}/edit/", h.requireLogin(h.editPost)).
		Methods(http.MethodGet, http.MethodPost).Name(RouteEditPost)
}
