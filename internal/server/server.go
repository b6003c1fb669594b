package server

import (
	"net/http"
)

// Deps wires the HTTP surface to the rest of the daemon. Hub, Summarizer
// and Chat are optional; Store and Ingestor are required.
type Deps struct {
	Store      SessionStore
	Ingestor   Ingestor
	Hub        *Hub
	Summarizer Summarizer
	Chat       ChatClient

	AuthToken string
	Mode      string
	Warnings  []string
}

func Handler(deps Deps) http.Handler {
	mux := http.NewServeMux()

	if deps.Hub != nil {
		registerWSRoute(mux, deps.Hub)
	}

	api := http.NewServeMux()
	registerAPIRoutes(api, deps)
	mux.Handle("/api/", requireAuth(deps.AuthToken, api))

	return mux
}
