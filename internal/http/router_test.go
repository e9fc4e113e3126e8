package http

import (
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/smtp"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foothill/blog/internal/auth"
	"github.com/foothill/blog/internal/config"
	"github.com/foothill/blog/internal/email"
	"github.com/foothill/blog/internal/httputil"
	"github.com/foothill/blog/internal/logging"
	"github.com/foothill/blog/internal/metrics"
	"github.com/foothill/blog/internal/password"
	"github.com/foothill/blog/internal/post"
	"github.com/foothill/blog/internal/ratelimit"
	"github.com/foothill/blog/internal/storage"
	"github.com/foothill/blog/internal/user"
	"github.com/foothill/blog/templates"
)

// memStore keeps users and posts in memory in place of Postgres
type memStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]*user.User
	posts []*post.Post
}

func (m *memStore) Create(_ context.Context, username, email, passwordHash string) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			return nil, user.ErrDuplicateUsername
		}
		if u.Email == email {
			return nil, user.ErrDuplicateEmail
		}
	}
	u := &user.User{ID: uuid.New(), Username: username, Email: email, PasswordHash: passwordHash, ImageFile: user.DefaultImageFile}
	m.users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (m *memStore) find(match func(*user.User) bool) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, user.ErrNotFound
}

func (m *memStore) GetByEmail(_ context.Context, email string) (*user.User, error) {
	return m.find(func(u *user.User) bool { return u.Email == email })
}

func (m *memStore) GetByUsername(_ context.Context, username string) (*user.User, error) {
	return m.find(func(u *user.User) bool { return u.Username == username })
}

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (*user.User, error) {
	return m.find(func(u *user.User) bool { return u.ID == id })
}

func (m *memStore) Update(_ context.Context, id uuid.UUID, changes user.Changes) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	u.Username, u.Email = changes.Username, changes.Email
	if changes.ImageFile != nil {
		u.ImageFile = *changes.ImageFile
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) UpdatePassword(_ context.Context, id uuid.UUID, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return user.ErrNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

func (m *memStore) List(_ context.Context, q post.ListQuery) ([]*post.Post, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*post.Post
	for i := len(m.posts) - 1; i >= 0; i-- {
		if q.AuthorID == nil || m.posts[i].AuthorID == *q.AuthorID {
			out = append(out, m.posts[i])
		}
	}
	total := len(out)
	if q.Offset >= total {
		return nil, total, nil
	}
	return out[q.Offset:min(total, q.Offset+q.Limit)], total, nil
}

func (m *memStore) GetByIDPost(id uuid.UUID) (*post.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.posts {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, post.ErrNotFound
}

func (m *memStore) CreatePost(authorID uuid.UUID, title, content string) (*post.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	author := m.users[authorID]
	p := &post.Post{
		ID:         uuid.New(),
		AuthorID:   authorID,
		Author:     post.Author{ID: authorID, Username: author.Username, ImageFile: author.ImageFile},
		Title:      title,
		Content:    content,
		DatePosted: time.Now(),
	}
	m.posts = append(m.posts, p)
	return p, nil
}

// postStore adapts memStore to post.Store, whose method names overlap user.Repository's
type postStore struct{ *memStore }

func (s postStore) GetByID(_ context.Context, id uuid.UUID) (*post.Post, error) {
	return s.GetByIDPost(id)
}

func (s postStore) Create(_ context.Context, authorID uuid.UUID, title, content string) (*post.Post, error) {
	return s.CreatePost(authorID, title, content)
}

type capturedMail struct {
	mu   sync.Mutex
	msgs []string
}

func (c *capturedMail) send(_ string, _ smtp.Auth, _ string, _ []string, msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, string(msg))
	return nil
}

func (c *capturedMail) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.msgs...)
}

type testApp struct {
	server  *httptest.Server
	client  *http.Client
	store   *memStore
	mail    *capturedMail
	authSvc *auth.Service
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := &config.Config{
		Server: config.ServerConfig{MaxUploadBytes: 1 << 20},
		Auth:   config.AuthConfig{SecureCookies: false},
	}

	pictureDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(pictureDir, user.DefaultImageFile), []byte("jpeg"), 0o644))
	pictures, err := storage.NewLocalStore(pictureDir)
	require.NoError(t, err)

	codec, err := auth.NewPasetoCodec([]byte(strings.Repeat("s", 32)), 30*time.Minute)
	require.NoError(t, err)

	store := &memStore{users: map[uuid.UUID]*user.User{}}
	mail := &capturedMail{}
	sessions := auth.NewSessionStore(rdb, time.Hour, 24*time.Hour)
	limiter := ratelimit.NewLimiter(rdb, 50, time.Minute, time.Minute)
	collector := metrics.NewCollector()

	authSvc, err := auth.NewService(auth.Dependencies{
		Users:    store,
		Hasher:   password.NewArgon2(password.Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 32, SaltLen: 16}),
		Tokens:   codec,
		Sessions: sessions,
		Mailer:   email.NewService("localhost", "25", "", "", "noreply@blog.test", 10).WithSender(mail.send),
		Pictures: pictures,
		Throttle: limiter,
		Events:   collector,
	}, "http://blog.test", 30*time.Minute)
	require.NoError(t, err)

	renderer, err := httputil.NewRenderer(templates.Pages(), auth.IsAuthenticated)
	require.NoError(t, err)

	router := NewRouter(cfg, Handlers{
		Auth:       auth.NewHandler(authSvc, renderer, limiter, false),
		Posts:      post.NewHandler(post.NewService(postStore{store}, store), renderer),
		Identity:   auth.NewMiddleware(sessions, false),
		Renderer:   renderer,
		Metrics:    collector,
		Static:     templates.Static(),
		PictureDir: pictureDir,
	}, logging.NewLogger(true))

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return &testApp{server: server, client: client, store: store, mail: mail, authSvc: authSvc}
}

func (a *testApp) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	resp, err := a.client.Get(a.server.URL + path)
	require.NoError(t, err)
	return resp, readBody(t, resp)
}

// submit posts a form with the CSRF token the browser already holds
func (a *testApp) submit(t *testing.T, path string, form url.Values) (*http.Response, string) {
	t.Helper()
	if form.Get(httputil.CSRFFieldName) == "" {
		form.Set(httputil.CSRFFieldName, a.cookie(t, "csrf_token"))
	}
	resp, err := a.client.PostForm(a.server.URL+path, form)
	require.NoError(t, err)
	return resp, readBody(t, resp)
}

func (a *testApp) cookie(t *testing.T, name string) string {
	t.Helper()
	u, err := url.Parse(a.server.URL)
	require.NoError(t, err)
	for _, c := range a.client.Jar.Cookies(u) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestOperationalRoutes(t *testing.T) {
	app := newTestApp(t)

	resp, body := app.get(t, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, body)
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Contains(t, resp.Header.Get("Content-Security-Policy"), "frame-ancestors 'none'")

	resp, _ = app.get(t, "/static/main.css")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = app.get(t, "/static/profile_pics/default.jpg")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "jpeg", body)

	resp, body = app.get(t, "/no/such/page")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body, "Oops. Page Not Found (404)")

	resp, body = app.get(t, "/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `blog_http_requests_total{method="GET",status="404"} 1`)
}

func TestFormsRequireCSRFToken(t *testing.T) {
	app := newTestApp(t)

	// No page visited yet, so the browser holds no token
	resp, err := app.client.PostForm(app.server.URL+"/login", url.Values{"email": {"a@x.io"}, "password": {"pw"}})
	require.NoError(t, err)
	body := readBody(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Contains(t, body, "(403)")

	app.get(t, "/login")
	resp, _ = app.submit(t, "/login", url.Values{"email": {"a@x.io"}, "password": {"pw"}, httputil.CSRFFieldName: {"forged"}})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body = app.submit(t, "/login", url.Values{"email": {"a@x.io"}, "password": {"pw"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Login Unsuccessful")
}

var resetPath = regexp.MustCompile(`/ResetPassword/[A-Za-z0-9._\-]+`)

func TestAccountWorkflow(t *testing.T) {
	app := newTestApp(t)

	resp, body := app.get(t, "/register")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `name="csrf_token" value="`+app.cookie(t, "csrf_token")+`"`)

	resp, _ = app.submit(t, "/register", url.Values{
		"username": {"alice"}, "email": {"a@x.io"}, "password": {"pw1"}, "confirm_password": {"pw1"},
	})
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	_, body = app.get(t, "/login")
	assert.Contains(t, body, "Your account has been created!")

	// Protected pages bounce to login and come back afterwards
	resp, _ = app.get(t, "/account")
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login?next=%2Faccount", resp.Header.Get("Location"))

	resp, _ = app.submit(t, "/login?next=%2Faccount", url.Values{"email": {"a@x.io"}, "password": {"pw1"}})
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/account", resp.Header.Get("Location"))
	require.NotEmpty(t, app.cookie(t, auth.SessionCookieName))

	resp, body = app.get(t, "/account")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `value="alice"`)

	resp, _ = app.submit(t, "/post/new", url.Values{"title": {"First"}, "content": {"Hello there"}})
	require.Equal(t, http.StatusFound, resp.StatusCode)

	resp, body = app.get(t, "/user/alice")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Posts by alice (1)")
	assert.Contains(t, body, "First")

	// Renaming moves the listing to the new username
	resp, _ = app.submit(t, "/account", url.Values{"username": {"alice2"}, "email": {"a@x.io"}})
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/account", resp.Header.Get("Location"))
	resp, body = app.get(t, "/user/alice2")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "First")
	resp, _ = app.get(t, "/user/alice")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = app.get(t, "/logout")
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Empty(t, app.cookie(t, auth.SessionCookieName))

	// Reset the forgotten password through the mailed link
	resp, _ = app.submit(t, "/ResetPassword", url.Values{"email": {"a@x.io"}})
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
	app.authSvc.WaitForMail()

	mails := app.mail.all()
	require.Len(t, mails, 1)
	assert.Contains(t, mails[0], "To: a@x.io")
	link := resetPath.FindString(mails[0])
	require.NotEmpty(t, link)

	resp, _ = app.get(t, link)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = app.submit(t, link, url.Values{"password": {"pw2"}, "confirm_password": {"pw2"}})
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	resp, body = app.submit(t, "/login", url.Values{"email": {"a@x.io"}, "password": {"pw1"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Login Unsuccessful")

	resp, _ = app.submit(t, "/login", url.Values{"email": {"a@x.io"}, "password": {"pw2"}})
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))

	resp, body = app.get(t, "/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `blog_auth_events_total{event="reset_completed"} 1`)
}
