package httpapi

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static/*
var operatorPage embed.FS

// newStaticHandler serves the embedded operator page. The page is tiny and
// tied to the wire protocol of this binary, so browsers must not cache it
// across upgrades.
func newStaticHandler() http.Handler {
	sub, err := fs.Sub(operatorPage, "static")
	if err != nil {
		return http.NotFoundHandler()
	}
	files := http.FileServer(http.FS(sub))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		files.ServeHTTP(w, r)
	})
}
