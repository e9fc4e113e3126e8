package templates

import (
	"embed"
	"io/fs"
)

// htmlFS holds the page templates. Names starting with an underscore are
// partials included with every page.
//
//go:embed html/*.html
var htmlFS embed.FS

// staticFS holds stylesheets served under /static/.
//
//go:embed static/*
var staticFS embed.FS

// Pages returns the page templates rooted at their directory
func Pages() fs.FS {
	return mustSub(htmlFS, "html")
}

// Static returns the static assets rooted at their directory
func Static() fs.FS {
	return mustSub(staticFS, "static")
}

func mustSub(fsys fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(err)
	}
	return sub
}
