package main

import (
	"net/http"

	"github.com/justinas/alice"
)

func (app *application) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ping", ping)
	mux.Handle("GET /ws", app.hub)
	mux.Handle("GET /metrics", app.metrics.Handler())

	api := alice.New(app.jsonContent)
	mux.Handle("GET /api/state", api.ThenFunc(app.apiState))
	mux.Handle("GET /api/records", api.ThenFunc(app.apiRecords))
	mux.Handle("GET /api/plants", api.ThenFunc(app.apiPlants))
	mux.Handle("GET /api/daily", api.ThenFunc(app.apiDaily))

	standard := alice.New(app.recoverPanic, app.logRequest, app.securityHeaders, app.enableCORS)
	return standard.Then(mux)
}
