package jobs_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

type fakeEnqueuer struct {
	checks []string
	err    error
}

func (f *fakeEnqueuer) EnqueueIntegrityCheck(_ context.Context, checks ...string) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.checks = checks
	return &asynq.TaskInfo{ID: "task-1", Queue: jobs.QueueDefault}, nil
}

type fakeInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (f fakeInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return f.info, f.err
}

func serve(h *jobs.Handler, method, path, body string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Route("/jobs", h.MountRoutes)
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestEnqueueIntegrityCheck(t *testing.T) {
	enqueuer := &fakeEnqueuer{}
	h := jobs.NewHandler(nil, enqueuer, nil)

	rr := serve(h, http.MethodPost, "/jobs/integrity", `{"checks":["balance_due"]}`)
	require.Equal(t, http.StatusAccepted, rr.Code)
	require.Equal(t, []string{jobs.CheckBalanceDue}, enqueuer.checks)

	var body struct {
		TaskID string `json:"task_id"`
		Queue  string `json:"queue"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "task-1", body.TaskID)
	require.Equal(t, jobs.QueueDefault, body.Queue)

	rr = serve(h, http.MethodPost, "/jobs/integrity", "")
	require.Equal(t, http.StatusAccepted, rr.Code)
	require.Empty(t, enqueuer.checks)
}

func TestEnqueueIntegrityCheckErrors(t *testing.T) {
	h := jobs.NewHandler(nil, &fakeEnqueuer{}, nil)
	rr := serve(h, http.MethodPost, "/jobs/integrity", `{"checks":["vibes"]}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "vibes")

	h = jobs.NewHandler(nil, &fakeEnqueuer{err: asynq.ErrDuplicateTask}, nil)
	rr = serve(h, http.MethodPost, "/jobs/integrity", "")
	require.Equal(t, http.StatusConflict, rr.Code)

	h = jobs.NewHandler(nil, nil, nil)
	rr = serve(h, http.MethodPost, "/jobs/integrity", "")
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestJobsHealth(t *testing.T) {
	h := jobs.NewHandler(fakeInspector{info: &asynq.QueueInfo{Queue: jobs.QueueDefault, Pending: 3, Retry: 1}}, nil, nil)
	rr := serve(h, http.MethodGet, "/jobs/health", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"queue":"default","pending":3,"active":0,"scheduled":0,"retry":1,"archived":0,"paused":false}`, rr.Body.String())

	h = jobs.NewHandler(fakeInspector{err: errors.New("redis down")}, nil, nil)
	rr = serve(h, http.MethodGet, "/jobs/health", "")
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
