package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/okian/promptelo/internal/domain/model"
)

// tournamentRequest is the body of POST /tournaments.
type tournamentRequest struct {
	Task     model.Task     `json:"task"`
	Settings model.Settings `json:"settings"`
	Key      string         `json:"key"`
}

func (r tournamentRequest) validate() error {
	if r.Settings.Mode != "" && !r.Settings.Mode.Valid() {
		return errors.New("unknown judge mode: " + string(r.Settings.Mode))
	}
	if r.Settings.Rounds < 0 || r.Settings.Candidates < 0 || r.Settings.Parallelism < 0 {
		return errors.New("rounds, candidates and parallelism must not be negative")
	}
	if r.Settings.KFactor < 0 {
		return errors.New("k_factor must not be negative")
	}
	return nil
}

type submitResponse struct {
	ID        string          `json:"id"`
	Status    model.JobStatus `json:"status"`
	Duplicate bool            `json:"duplicate"`
}

type tournamentResponse struct {
	Job    model.JobInfo `json:"job"`
	Result *model.Result `json:"result,omitempty"`
}

// LeaderboardEntry is one row of GET /tournaments/{id}/leaderboard.
type LeaderboardEntry struct {
	Rank    int     `json:"rank"`
	ID      string  `json:"id"`
	Rating  float64 `json:"rating"`
	Content string  `json:"content"`
}

// TournamentsHandler handles tournament submission and reads.
type TournamentsHandler struct {
	deps     Dependencies
	maxLimit int
}

// NewTournamentsHandler creates a tournaments handler. A non-positive
// maxLimit uses DefaultMaxListLimit.
func NewTournamentsHandler(deps Dependencies, maxLimit int) *TournamentsHandler {
	if maxLimit <= 0 {
		maxLimit = DefaultMaxListLimit
	}
	return &TournamentsHandler{deps: deps, maxLimit: maxLimit}
}

// HandleSubmit handles POST /tournaments.
func (h *TournamentsHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit_tournament"
	var req tournamentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	id, dup, err := h.deps.Submit(r.Context(), model.Job{Task: req.Task, Settings: req.Settings, Key: req.Key})
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	status := model.JobQueued
	if dup {
		if info, err := h.deps.Status(r.Context(), id); err == nil {
			status = info.Status
		}
	}
	writeJSON(w, http.StatusAccepted, submitResponse{ID: id, Status: status, Duplicate: dup})
}

// HandleList handles GET /tournaments?limit=N.
func (h *TournamentsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_tournaments"
	limit, err := h.limit(r, h.maxLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	list, err := h.deps.List(r.Context(), limit)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleGet handles GET /tournaments/{id}. The result is included once finished.
func (h *TournamentsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_tournament"
	id := r.PathValue("id")
	info, err := h.deps.Status(r.Context(), id)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	resp := tournamentResponse{Job: info}
	if info.Status == model.JobComplete || info.Status == model.JobFailed {
		if res, err := h.deps.Result(r.Context(), id); err == nil {
			resp.Result = res
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleLeaderboard handles GET /tournaments/{id}/leaderboard?limit=N.
func (h *TournamentsHandler) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_leaderboard"
	limit, err := h.limit(r, 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	res, err := h.deps.Result(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	rows := res.Standings
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	out := make([]LeaderboardEntry, len(rows))
	for i, c := range rows {
		out[i] = LeaderboardEntry{Rank: i + 1, ID: c.ID, Rating: c.Rating, Content: c.Content}
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleMatches handles GET /tournaments/{id}/matches.
func (h *TournamentsHandler) HandleMatches(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_matches"
	res, err := h.deps.Result(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	matches := res.Matches
	if matches == nil {
		matches = []model.MatchOutcome{}
	}
	writeJSON(w, http.StatusOK, matches)
}

// limit parses ?limit. Absent means def; present must be in [1, maxLimit].
func (h *TournamentsHandler) limit(r *http.Request, def int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, errors.New("limit must be a positive integer")
	}
	if n > h.maxLimit {
		return 0, errors.New("limit exceeds " + strconv.Itoa(h.maxLimit))
	}
	return n, nil
}
