package main

import (
	"net/http"

	"furitingoasis/smart_irrigation/internal/irrigation"
)

const maxQueryRecords = 5000

func ping(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("OK"))
}

func (app *application) apiState(w http.ResponseWriter, r *http.Request) {
	app.writeJSON(w, http.StatusOK, app.state.SystemState())
}

// recordsQuery selects the records source: the live buffer when empty, the
// newest Limit stored records, or Points records sampled over the whole
// history.
type recordsQuery struct {
	Limit  int `form:"limit"`
	Points int `form:"points"`
}

func (app *application) apiRecords(w http.ResponseWriter, r *http.Request) {
	var q recordsQuery
	if err := app.decodeQuery(r, &q); err != nil {
		app.clientError(w, http.StatusBadRequest, err.Error())
		return
	}
	if q.Limit < 0 || q.Points < 0 || q.Limit > maxQueryRecords || q.Points > maxQueryRecords {
		app.clientError(w, http.StatusBadRequest, "limit and points must be between 1 and 5000")
		return
	}
	if q.Limit > 0 && q.Points > 0 {
		app.clientError(w, http.StatusBadRequest, "use either limit or points, not both")
		return
	}

	var (
		recs []irrigation.SensorRecord
		err  error
	)
	switch {
	case q.Limit > 0:
		recs, err = app.sensors.Latest(r.Context(), q.Limit)
	case q.Points > 0:
		recs, err = app.sensors.Sampled(r.Context(), q.Points)
	default:
		recs = app.state.Records()
	}
	if err != nil {
		app.serverError(w, r, err)
		return
	}
	app.writeJSON(w, http.StatusOK, recs)
}

func (app *application) apiPlants(w http.ResponseWriter, r *http.Request) {
	profiles, err := app.profiles.List(r.Context())
	if err != nil {
		app.serverError(w, r, err)
		return
	}
	app.writeJSON(w, http.StatusOK, profiles)
}

type dailyQuery struct {
	Days int `form:"days"`
}

type dailyResponse struct {
	Today   irrigation.DailyTotals   `json:"today"`
	History []irrigation.DailyTotals `json:"history"`
}

func (app *application) apiDaily(w http.ResponseWriter, r *http.Request) {
	q := dailyQuery{Days: 7}
	if err := app.decodeQuery(r, &q); err != nil {
		app.clientError(w, http.StatusBadRequest, err.Error())
		return
	}
	if q.Days < 1 || q.Days > 366 {
		app.clientError(w, http.StatusBadRequest, "days must be between 1 and 366")
		return
	}

	resp := dailyResponse{Today: app.state.Today(), History: []irrigation.DailyTotals{}}
	if app.daily != nil {
		history, err := app.daily.Recent(r.Context(), q.Days)
		if err != nil {
			app.serverError(w, r, err)
			return
		}
		resp.History = history
	}
	app.writeJSON(w, http.StatusOK, resp)
}
