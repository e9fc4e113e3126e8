package post

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foothill/blog/internal/auth"
	"github.com/foothill/blog/internal/httputil"
	"github.com/foothill/blog/internal/user"
	"github.com/foothill/blog/templates"
)

// asViewer pins every request to one identity, standing in for the session middleware
func asViewer(viewer auth.Identity) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), viewer)))
		})
	}
}

func newTestRouter(t *testing.T, svc *Service, viewer auth.Identity) http.Handler {
	t.Helper()
	renderer, err := httputil.NewRenderer(templates.Pages(), auth.IsAuthenticated)
	require.NoError(t, err)
	h := NewHandler(svc, renderer)

	r := chi.NewRouter()
	r.Use(asViewer(viewer))
	r.Get("/", h.Home)
	r.Get("/about", h.About)
	r.Get("/post/new", h.NewPostPage)
	r.Post("/post/new", h.NewPost)
	r.Get("/post/{id}", h.Detail)
	r.Get("/user/{username}", h.UserPosts)
	return r
}

func serve(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestUserPostsHandler(t *testing.T) {
	svc, _, authors := newTestService()
	alice := authors.add("alice")
	seed(t, svc, alice, 6)
	router := newTestRouter(t, svc, auth.Anonymous)

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/user/alice", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Posts by alice (6)")
	assert.Contains(t, body, "alice 6")
	assert.NotContains(t, body, "alice 1<")
	assert.Contains(t, body, `href="/user/alice?page=2"`)

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/user/alice?page=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "alice 1<")

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/user/alice?page=abc", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "alice 6")

	for _, page := range []string{"1844674407370955163", "99999999999999999999999"} {
		rec = serve(router, httptest.NewRequest(http.MethodGet, "/user/alice?page="+page, nil))
		require.Equal(t, http.StatusOK, rec.Code, "page=%s", page)
		assert.Contains(t, rec.Body.String(), "Posts by alice (6)")
		assert.NotContains(t, rec.Body.String(), "alice 6<")
	}

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/user/nobody", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Page Not Found")
}

func TestUserPostsPagerEscapesUsername(t *testing.T) {
	svc, _, authors := newTestService()
	seed(t, svc, authors.add("ann lee"), 6)
	router := newTestRouter(t, svc, auth.Anonymous)

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/user/ann%20lee", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `href="/user/ann%20lee?page=2"`)
}

func TestHomeHandler(t *testing.T) {
	svc, _, authors := newTestService()
	router := newTestRouter(t, svc, auth.Anonymous)

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No posts yet.")
	assert.Contains(t, rec.Body.String(), `href="/login"`)

	seed(t, svc, authors.add("alice"), 1)
	rec = serve(router, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Contains(t, rec.Body.String(), `href="/user/alice"`)
	assert.Contains(t, rec.Body.String(), "/static/profile_pics/"+user.DefaultImageFile)
}

func TestDetailHandler(t *testing.T) {
	svc, posts, authors := newTestService()
	seed(t, svc, authors.add("alice"), 1)
	posts.posts[0].Content = `<p>hi</p><script>alert(1)</script>`
	router := newTestRouter(t, svc, auth.Anonymous)

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/post/"+posts.posts[0].ID.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<p>hi</p>")
	assert.NotContains(t, rec.Body.String(), "<script>")

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/post/not-a-uuid", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNewPostHandlers(t *testing.T) {
	svc, _, authors := newTestService()
	alice := authors.add("alice")

	anon := newTestRouter(t, svc, auth.Anonymous)
	rec := serve(anon, httptest.NewRequest(http.MethodGet, "/post/new", nil))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login?next=%2Fpost%2Fnew", rec.Header().Get("Location"))

	signedIn := newTestRouter(t, svc, auth.Identity{UserID: alice.ID, SessionToken: "tok"})
	rec = serve(signedIn, httptest.NewRequest(http.MethodGet, "/post/new", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	submit := func(form url.Values) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/post/new", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return serve(signedIn, req)
	}

	rec = submit(url.Values{"title": {""}, "content": {"draft"}})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "This field is required.")
	assert.Contains(t, rec.Body.String(), ">draft</textarea>")

	rec = submit(url.Values{"title": {"Hello"}, "content": {"World"}})
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	_, p, err := svc.UserPosts(t.Context(), "alice", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"Hello"}, titles(p))
}
