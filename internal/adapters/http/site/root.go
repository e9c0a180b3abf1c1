// Package site serves the embedded live scoreboard page.
package site

import (
	"context"
	"net/http"
)

// Register attaches the scoreboard routes to mux. The page reads the event id
// from the "event" query parameter and follows the live stream.
func Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}

	files := http.FileServer(FS())
	mux.Handle("GET /{$}", files)
	mux.Handle("GET /board.js", files)
}
