package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/okian/promptelo/internal/adapters/http/api"
	"github.com/okian/promptelo/internal/adapters/repository"
	service "github.com/okian/promptelo/internal/app"
	"github.com/okian/promptelo/internal/domain/model"
	"github.com/okian/promptelo/internal/task"
	. "github.com/smartystreets/goconvey/convey"
)

type mockDependencies struct {
	submitErr error
	submitted []model.Job
	keys      map[string]string
	jobs      map[string]model.JobInfo
	results   map[string]*model.Result
}

func newMockDependencies() *mockDependencies {
	return &mockDependencies{
		keys:    map[string]string{},
		jobs:    map[string]model.JobInfo{},
		results: map[string]*model.Result{},
	}
}

func (m *mockDependencies) Submit(_ context.Context, job model.Job) (string, bool, error) {
	if m.submitErr != nil {
		return "", false, m.submitErr
	}
	if id, ok := m.keys[job.Key]; ok && job.Key != "" {
		return id, true, nil
	}
	id := fmt.Sprintf("job-%d", len(m.submitted)+1)
	m.submitted = append(m.submitted, job)
	m.keys[job.Key] = id
	m.jobs[id] = model.JobInfo{ID: id, Status: model.JobQueued}
	return id, false, nil
}

func (m *mockDependencies) Status(_ context.Context, id string) (model.JobInfo, error) {
	info, ok := m.jobs[id]
	if !ok {
		return model.JobInfo{}, service.ErrNotFound
	}
	return info, nil
}

func (m *mockDependencies) Result(_ context.Context, id string) (*model.Result, error) {
	res, ok := m.results[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", service.ErrNotFound, id)
	}
	return res, nil
}

func (m *mockDependencies) List(_ context.Context, limit int) ([]repository.Summary, error) {
	out := []repository.Summary{}
	for _, res := range m.results {
		if len(out) == limit {
			break
		}
		out = append(out, repository.Summarize(res))
	}
	return out, nil
}

type mockStatsProvider struct {
	stats map[string]any
}

func (m *mockStatsProvider) GetStats() map[string]any {
	return m.stats
}

func finished() *model.Result {
	return &model.Result{
		ID:   "done",
		Task: model.Task{Description: "d", TestCases: []string{"t"}},
		Standings: []model.Candidate{
			{ID: "P2", Content: "Be thorough.", Rating: 1212},
			{ID: "P1", Content: "Be brief.", Rating: 1188},
		},
		Matches: []model.MatchOutcome{{
			Round: 1, CandidateA: "P1", CandidateB: "P2", Verdict: model.OutcomeB,
			RatingBefore: model.RatingPair{A: 1200, B: 1200},
			RatingAfter:  model.RatingPair{A: 1188, B: 1212},
		}},
		Termination: model.TerminationExhausted,
	}
}

func serve(mux *http.ServeMux, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, http.NoBody)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestServer_Register(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		deps := newMockDependencies()
		deps.jobs["done"] = model.JobInfo{ID: "done", Status: model.JobComplete}
		deps.results["done"] = finished()
		stats := &mockStatsProvider{stats: map[string]any{"started": true}}
		mux := http.NewServeMux()
		api.NewServer(deps, stats, 10).Register(context.Background(), mux)

		Convey("Then health and stats respond", func() {
			w := serve(mux, http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"ok"`)

			w = serve(mux, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"started":true`)
		})

		Convey("Then metrics are served in the Prometheus format", func() {
			serve(mux, http.MethodGet, "/healthz", "")
			w := serve(mux, http.MethodGet, "/metrics", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "http_requests_total")
		})

		Convey("When submitting a valid tournament", func() {
			body := `{"task":{"description":"d","test_cases":["t"]},"settings":{"rounds":3},"key":"k1"}`
			w := serve(mux, http.MethodPost, "/tournaments", body)

			Convey("Then it is accepted and queued", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				var resp map[string]any
				So(json.Unmarshal(w.Body.Bytes(), &resp), ShouldBeNil)
				So(resp["id"], ShouldEqual, "job-1")
				So(resp["status"], ShouldEqual, "queued")
				So(resp["duplicate"], ShouldEqual, false)
				So(deps.submitted[0].Settings.Rounds, ShouldEqual, 3)
				So(deps.submitted[0].Key, ShouldEqual, "k1")
			})

			Convey("And the same key is submitted again", func() {
				w := serve(mux, http.MethodPost, "/tournaments", body)
				So(w.Code, ShouldEqual, http.StatusAccepted)
				So(w.Body.String(), ShouldContainSubstring, `"duplicate":true`)
				So(w.Body.String(), ShouldContainSubstring, `"job-1"`)
			})
		})

		Convey("When submitting malformed or invalid requests", func() {
			So(serve(mux, http.MethodPost, "/tournaments", `{`).Code, ShouldEqual, http.StatusBadRequest)
			So(serve(mux, http.MethodPost, "/tournaments", `{"settings":{"mode":"vibes"}}`).Code, ShouldEqual, http.StatusBadRequest)

			deps.submitErr = fmt.Errorf("%w: description required", task.ErrInvalid)
			w := serve(mux, http.MethodPost, "/tournaments", `{"task":{}}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(w.Body.String(), ShouldContainSubstring, "bad_request")
		})

		Convey("When the queue is full", func() {
			deps.submitErr = service.ErrBackpressure
			w := serve(mux, http.MethodPost, "/tournaments", `{"task":{"description":"d","test_cases":["t"]}}`)
			So(w.Code, ShouldEqual, http.StatusTooManyRequests)
			So(w.Body.String(), ShouldContainSubstring, "backpressure")
		})

		Convey("When reading a finished tournament", func() {
			w := serve(mux, http.MethodGet, "/tournaments/done", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"status":"complete"`)
			So(w.Body.String(), ShouldContainSubstring, `"standings"`)
		})

		Convey("When reading the leaderboard", func() {
			w := serve(mux, http.MethodGet, "/tournaments/done/leaderboard?limit=1", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var rows []api.LeaderboardEntry
			So(json.Unmarshal(w.Body.Bytes(), &rows), ShouldBeNil)
			So(rows, ShouldResemble, []api.LeaderboardEntry{{Rank: 1, ID: "P2", Rating: 1212, Content: "Be thorough."}})

			So(serve(mux, http.MethodGet, "/tournaments/done/leaderboard?limit=0", "").Code, ShouldEqual, http.StatusBadRequest)
			So(serve(mux, http.MethodGet, "/tournaments/done/leaderboard?limit=11", "").Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When reading the match log", func() {
			w := serve(mux, http.MethodGet, "/tournaments/done/matches", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var matches []model.MatchOutcome
			So(json.Unmarshal(w.Body.Bytes(), &matches), ShouldBeNil)
			So(matches, ShouldHaveLength, 1)
			So(matches[0].WinnerID(), ShouldEqual, "P2")
		})

		Convey("When listing tournaments", func() {
			w := serve(mux, http.MethodGet, "/tournaments?limit=5", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"best_id":"P2"`)
		})

		Convey("When reading an unknown tournament", func() {
			So(serve(mux, http.MethodGet, "/tournaments/nope", "").Code, ShouldEqual, http.StatusNotFound)
			So(serve(mux, http.MethodGet, "/tournaments/nope/matches", "").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When using the wrong method", func() {
			So(serve(mux, http.MethodDelete, "/tournaments/done", "").Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestErrors(t *testing.T) {
	Convey("Given API errors", t, func() {
		cause := errors.New("boom")
		err := api.WrapKind("api.op", api.ErrBadRequest, cause)

		So(err.Error(), ShouldEqual, "api.op: bad request: boom")
		So(errors.Is(err, api.ErrBadRequest), ShouldBeTrue)
		So(errors.Is(err, cause), ShouldBeTrue)
		So(api.NewKind("api.op", api.ErrNotFound).Error(), ShouldEqual, "api.op: not found")
		So(api.Wrap("api.op", nil), ShouldBeNil)
	})
}
