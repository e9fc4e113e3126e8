package httputil

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/foothill/blog/internal/forms"
	"github.com/foothill/blog/internal/logging"
)

const (
	layoutTemplate = "layout.html"
	errorTemplate  = "error.html"

	// pictureURLPrefix is where locally stored profile pictures are served
	pictureURLPrefix = "/static/profile_pics/"
)

// FormState carries submitted values and field messages back into a form
type FormState struct {
	Values map[string]string
	Errors forms.Errors
}

// NewFormState builds a form state from submitted values
func NewFormState(values map[string]string, errs forms.Errors) FormState {
	return FormState{Values: values, Errors: errs}
}

func (f FormState) Value(field string) string {
	return f.Values[field]
}

func (f FormState) Error(field string) string {
	return f.Errors.Get(field)
}

// View is the data every page template receives
type View struct {
	Title         string
	Authenticated bool
	CSRFToken     string
	Flashes       []Flash
	Form          FormState
	Data          any
}

// Renderer executes page templates inside the shared layout
type Renderer struct {
	pages         map[string]*template.Template
	authenticated func(*http.Request) bool
}

// NewRenderer parses every page in fsys together with the layout and partials.
// authenticated tells the layout whether to show account links.
func NewRenderer(fsys fs.FS, authenticated func(*http.Request) bool) (*Renderer, error) {
	policy := bluemonday.UGCPolicy()
	funcs := template.FuncMap{
		"sanitize": func(s string) template.HTML {
			return template.HTML(policy.Sanitize(s))
		},
		"picture": PictureURL,
		"date": func(t time.Time) string {
			return t.Format("2006-01-02")
		},
	}

	names, err := fs.Glob(fsys, "*.html")
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}

	// Files starting with an underscore hold partials shared by every page
	shared := []string{layoutTemplate}
	for _, name := range names {
		if strings.HasPrefix(name, "_") {
			shared = append(shared, name)
		}
	}

	pages := make(map[string]*template.Template, len(names))
	for _, name := range names {
		if name == layoutTemplate || strings.HasPrefix(name, "_") {
			continue
		}
		tmpl, err := template.New(layoutTemplate).Funcs(funcs).ParseFS(fsys, append(shared, name)...)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		pages[name] = tmpl
	}
	if _, ok := pages[errorTemplate]; !ok {
		return nil, fmt.Errorf("missing %s", errorTemplate)
	}

	if authenticated == nil {
		authenticated = func(*http.Request) bool { return false }
	}

	return &Renderer{pages: pages, authenticated: authenticated}, nil
}

// PictureURL maps a stored picture reference to a URL. Object storage
// references are already absolute.
func PictureURL(ref string) string {
	if strings.Contains(ref, "://") {
		return ref
	}
	return pictureURLPrefix + path.Base(ref)
}

// Render writes page with the given status. Pending flashes are consumed.
func (rr *Renderer) Render(w http.ResponseWriter, r *http.Request, status int, page string, v View) {
	logger := logging.GetLoggerFromContext(r.Context())

	tmpl, ok := rr.pages[page]
	if !ok {
		logger.Error("unknown template", "template", page)
		rr.Error(w, r, http.StatusInternalServerError)
		return
	}

	v.Authenticated = rr.authenticated(r)
	v.CSRFToken = CSRFToken(r)
	v.Flashes = append(v.Flashes, PopFlashes(w, r)...)
	if v.Form.Values == nil {
		v.Form.Values = map[string]string{}
	}
	if v.Form.Errors == nil {
		v.Form.Errors = forms.Errors{}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, v); err != nil {
		logger.Error("failed to render template", "template", page, "error", err)
		if page != errorTemplate {
			rr.Error(w, r, http.StatusInternalServerError)
		} else {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		logger.Warn("failed to write response", "error", err)
	}
}

// ErrorPage is the data of the error template
type ErrorPage struct {
	Status  int
	Message string
}

var errorMessages = map[int]string{
	http.StatusBadRequest:            "The request could not be understood.",
	http.StatusForbidden:             "You don't have permission to do that (403)",
	http.StatusNotFound:              "Oops. Page Not Found (404)",
	http.StatusRequestEntityTooLarge: "The uploaded file is too large.",
	http.StatusTooManyRequests:       "Too many attempts. Please wait a few minutes and try again.",
	http.StatusInternalServerError:   "Something went wrong (500)",
}

// Error renders the error page for status
func (rr *Renderer) Error(w http.ResponseWriter, r *http.Request, status int) {
	msg, ok := errorMessages[status]
	if !ok {
		msg = http.StatusText(status)
	}
	rr.Render(w, r, status, errorTemplate, View{
		Title: http.StatusText(status),
		Data:  ErrorPage{Status: status, Message: msg},
	})
}

// NotFound is an http.HandlerFunc for unmatched routes
func (rr *Renderer) NotFound(w http.ResponseWriter, r *http.Request) {
	rr.Error(w, r, http.StatusNotFound)
}
