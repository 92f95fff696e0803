package forum

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
)

func newTestStore(t *testing.T) *SQLiteDatabase {
	t.Helper()
	store, err := NewSQLiteDatabase(":memory:")
	require.NoError(t, err)
	t.Cleanup(store.Close)
	require.NoError(t, store.CreateTables(context.Background()))
	return store
}

func seedUser(t *testing.T, store Store, username, password string) *User {
	t.Helper()
	user := NewUser(username, username+"@doe.com", false)
	require.NoError(t, user.SetPassword(password, bcrypt.MinCost))
	require.NoError(t, store.CreateUser(context.Background(), user))
	return user
}

func seedBoard(t *testing.T, store Store, name string) *Board {
	t.Helper()
	board := &Board{Name: name, Description: name + " board."}
	require.NoError(t, store.CreateBoard(context.Background(), board))
	return board
}

// seedTopic creates a topic holding posts posts, the first being the
// opening post.
func seedTopic(t *testing.T, store Store, board *Board, starter *User, posts int) *Topic {
	t.Helper()
	ctx := context.Background()
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	topic := &Topic{BoardID: board.ID, Subject: "Hello, world", StarterID: starter.ID, LastUpdated: at}
	first := &Post{Message: "Lorem ipsum dolor sit amet", CreatedAt: at, CreatedBy: starter.ID}
	require.NoError(t, store.CreateTopic(ctx, topic, first))
	for i := 1; i < posts; i++ {
		p := &Post{
			TopicID:   topic.ID,
			Message:   fmt.Sprintf("reply %d", i),
			CreatedAt: at.Add(time.Duration(i) * time.Minute),
			CreatedBy: starter.ID,
		}
		require.NoError(t, store.CreateReply(ctx, p))
	}
	got, err := store.GetTopic(ctx, board.ID, topic.ID)
	require.NoError(t, err)
	return got
}

type testForum struct {
	t      *testing.T
	store  *SQLiteDatabase
	h      *Handlers
	srv    *httptest.Server
	client *http.Client
}

func newTestForum(t *testing.T) *testForum {
	t.Helper()
	store := newTestStore(t)
	h, err := NewHandlers(store, nil, zaptest.NewLogger(t), Options{HashCost: bcrypt.MinCost})
	require.NoError(t, err)

	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)

	return &testForum{t: t, store: store, h: h, srv: srv, client: newTestClient(t)}
}

// newTestClient keeps cookies but does not follow redirects.
func newTestClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

type testResponse struct {
	Status   int
	Location string
	Body     string
}

func (f *testForum) do(req *http.Request) testResponse {
	f.t.Helper()
	resp, err := f.client.Do(req)
	require.NoError(f.t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(f.t, err)
	return testResponse{Status: resp.StatusCode, Location: resp.Header.Get("Location"), Body: string(body)}
}

func (f *testForum) get(path string) testResponse {
	f.t.Helper()
	req, err := http.NewRequest(http.MethodGet, f.srv.URL+path, nil)
	require.NoError(f.t, err)
	return f.do(req)
}

func (f *testForum) post(path string, form url.Values) testResponse {
	f.t.Helper()
	req, err := http.NewRequest(http.MethodPost, f.srv.URL+path, strings.NewReader(form.Encode()))
	require.NoError(f.t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return f.do(req)
}

func (f *testForum) login(username, password string) {
	f.t.Helper()
	resp := f.post("/login/", url.Values{"username": {username}, "password": {password}})
	require.Equal(f.t, http.StatusSeeOther, resp.Status, resp.Body)
}
