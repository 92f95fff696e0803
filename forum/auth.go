package forum

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const sessionUserKey = "user_id"

type contextKey string

const userContextKey = contextKey("user")

type LoginViewData struct {
	Base
	Form *LoginForm
}

type SignupViewData struct {
	Base
	Form *SignupForm
}

func currentUser(r *http.Request) *User {
	user, _ := r.Context().Value(userContextKey).(*User)
	return user
}

func withUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// authenticate loads the signed in user named by the session, if any.
func (h *Handlers) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id := h.Session.GetString(ctx, sessionUserKey)
		if id == "" {
			next.ServeHTTP(w, r)
			return
		}
		user, err := h.db.GetUserByID(ctx, id)
		switch {
		case errors.Is(err, ErrNotFound):
			h.Session.Remove(ctx, sessionUserKey)
		case err != nil:
			h.serverError(w, r, fmt.Errorf("load session user: %w", err))
			return
		default:
			user.Sanitize()
			r = r.WithContext(withUser(ctx, user))
		}
		next.ServeHTTP(w, r)
	})
}

// requireLogin sends anonymous requests to the login page, remembering
// where they were going.
func (h *Handlers) requireLogin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if currentUser(r) != nil {
			next(w, r)
			return
		}
		loginURL, err := h.urls.BuildURL(RouteLogin)
		if err != nil {
			h.serverError(w, r, err)
			return
		}
		q := url.Values{"next": {r.URL.RequestURI()}}
		http.Redirect(w, r, loginURL+"?"+q.Encode(), http.StatusFound)
	}
}

// safeNext keeps post-login redirects on this site.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return ""
	}
	return next
}

func (h *Handlers) startSession(ctx context.Context, user *User) error {
	if err := h.Session.RenewToken(ctx); err != nil {
		return err
	}
	h.Session.Put(ctx, sessionUserKey, user.ID)
	return nil
}

func (h *Handlers) signup(w http.ResponseWriter, r *http.Request) {
	data := SignupViewData{Base: h.base(r), Form: &SignupForm{}}
	if r.Method != http.MethodPost {
		h.render(w, r, http.StatusOK, "signup.html", data)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}
	form := ParseSignupForm(r.PostForm)
	data.Form = form
	if !form.Validate() {
		h.render(w, r, http.StatusOK, "signup.html", data)
		return
	}

	ctx := r.Context()
	user := NewUser(form.Username, form.Email, false)
	if err := user.SetPassword(form.Password, h.opts.HashCost); err != nil {
		h.serverError(w, r, fmt.Errorf("hash password: %w", err))
		return
	}
	err := h.db.CreateUser(ctx, user)
	if errors.Is(err, ErrDuplicate) {
		form.Errors.Add("username", "A user with that username already exists.")
		h.render(w, r, http.StatusOK, "signup.html", data)
		return
	}
	if err != nil {
		h.serverError(w, r, fmt.Errorf("create user: %w", err))
		return
	}
	if err := h.startSession(ctx, user); err != nil {
		h.serverError(w, r, err)
		return
	}
	h.logger.Info("User signed up", zap.String("user", user.Username))
	h.redirectTo(w, r, RouteHome)
}

func (h *Handlers) login(w http.ResponseWriter, r *http.Request) {
	data := LoginViewData{Base: h.base(r), Form: &LoginForm{Next: r.URL.Query().Get("next")}}
	if r.Method != http.MethodPost {
		h.render(w, r, http.StatusOK, "login.html", data)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}
	form := ParseLoginForm(r.PostForm)
	data.Form = form
	if !form.Validate() {
		h.render(w, r, http.StatusOK, "login.html", data)
		return
	}

	ctx := r.Context()
	user, err := h.db.GetUserByUsername(ctx, form.Username)
	if err != nil && !errors.Is(err, ErrNotFound) {
		h.serverError(w, r, fmt.Errorf("load user: %w", err))
		return
	}
	ok := false
	if user != nil {
		if ok, err = user.PasswordMatches(form.Password); err != nil {
			h.serverError(w, r, err)
			return
		}
	}
	if !ok {
		form.Errors.Add("", "Please enter a correct username and password.")
		h.render(w, r, http.StatusOK, "login.html", data)
		return
	}

	if err := h.startSession(ctx, user); err != nil {
		h.serverError(w, r, err)
		return
	}
	if err := h.db.TouchLastLogin(ctx, user.ID, h.now()); err != nil {
		h.logger.Warn("Could not record last login", zap.String("user", user.Username), zap.Error(err))
	}
	if next := safeNext(form.Next); next != "" {
		http.Redirect(w, r, next, http.StatusSeeOther)
		return
	}
	h.redirectTo(w, r, RouteHome)
}

func (h *Handlers) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.Session.Destroy(r.Context()); err != nil {
		h.serverError(w, r, err)
		return
	}
	h.redirectTo(w, r, RouteHome)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (h *Handlers) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		h.logger.Debug("Request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("took", time.Since(start)))
	})
}
