package post

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/foothill/blog/internal/auth"
	"github.com/foothill/blog/internal/forms"
	"github.com/foothill/blog/internal/httputil"
	"github.com/foothill/blog/internal/logging"
	"github.com/foothill/blog/internal/user"
)

const msgPostCreated = "Your post has been created!"

// Handler serves the listing, detail and new-post pages
type Handler struct {
	service  *Service
	renderer *httputil.Renderer
}

func NewHandler(service *Service, renderer *httputil.Renderer) *Handler {
	return &Handler{service: service, renderer: renderer}
}

type listingPage struct {
	Page *Page
	// Base is the path the pager links append ?page=N to
	Base string
	User *user.User
}

type detailPage struct {
	Post *Post
}

// Home lists every post, newest first
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	p, err := h.service.Home(r.Context(), pageParam(r))
	if err != nil {
		logger.Error("failed to list posts", "error", err.Error())
		h.renderer.Error(w, r, http.StatusInternalServerError)
		return
	}

	h.renderer.Render(w, r, http.StatusOK, "home.html", httputil.View{
		Data: listingPage{Page: p, Base: "/"},
	})
}

// UserPosts lists one author's posts
func (h *Handler) UserPosts(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())
	username := chi.URLParam(r, "username")

	author, p, err := h.service.UserPosts(r.Context(), username, pageParam(r))
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			h.renderer.Error(w, r, http.StatusNotFound)
			return
		}
		logger.Error("failed to list user posts", "username", username, "error", err.Error())
		h.renderer.Error(w, r, http.StatusInternalServerError)
		return
	}

	h.renderer.Render(w, r, http.StatusOK, "user_posts.html", httputil.View{
		Title: author.Username,
		Data:  listingPage{Page: p, Base: "/user/" + url.PathEscape(author.Username), User: author},
	})
}

// Detail shows a single post
func (h *Handler) Detail(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.renderer.Error(w, r, http.StatusNotFound)
		return
	}

	p, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			h.renderer.Error(w, r, http.StatusNotFound)
			return
		}
		logger.Error("failed to get post", "post_id", id, "error", err.Error())
		h.renderer.Error(w, r, http.StatusInternalServerError)
		return
	}

	h.renderer.Render(w, r, http.StatusOK, "post.html", httputil.View{
		Title: p.Title,
		Data:  detailPage{Post: p},
	})
}

// NewPostPage shows the new-post form
func (h *Handler) NewPostPage(w http.ResponseWriter, r *http.Request) {
	if !auth.IsAuthenticated(r) {
		auth.RequireLogin(w, r)
		return
	}
	h.renderer.Render(w, r, http.StatusOK, "create_post.html", httputil.View{Title: "New Post"})
}

// NewPost handles the new-post form
func (h *Handler) NewPost(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	in := NewPostInput{
		Title:   strings.TrimSpace(r.PostFormValue("title")),
		Content: r.PostFormValue("content"),
	}

	created, err := h.service.Create(r.Context(), auth.IdentityFromContext(r.Context()), in)
	if err != nil {
		var verr *forms.ValidationError
		switch {
		case errors.Is(err, auth.ErrAuthRequired):
			auth.RequireLogin(w, r)
		case errors.As(err, &verr):
			h.renderer.Render(w, r, http.StatusOK, "create_post.html", httputil.View{
				Title: "New Post",
				Form:  httputil.NewFormState(map[string]string{"title": in.Title, "content": in.Content}, verr.Errors),
			})
		default:
			logger.Error("failed to create post", "error", err.Error())
			h.renderer.Error(w, r, http.StatusInternalServerError)
		}
		return
	}

	logger.Info("post created", "post_id", created.ID)
	httputil.SetFlash(w, httputil.FlashSuccess, msgPostCreated)
	httputil.Redirect(w, r, "/")
}

// About is the static about page
func (h *Handler) About(w http.ResponseWriter, r *http.Request) {
	h.renderer.Render(w, r, http.StatusOK, "about.html", httputil.View{Title: "About"})
}

// pageParam reads ?page=N; missing or malformed values mean the first page,
// numbers too large to parse mean the last one allowed
func pageParam(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("page"))
	if errors.Is(err, strconv.ErrRange) && n > 0 {
		return MaxPage
	}
	if err != nil {
		return 1
	}
	return NormalizePage(n)
}
