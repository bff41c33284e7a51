package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/ticketslave/ticketslave/internal/jobs"
)

type fakeWarmer struct {
	invalidated int
	warmed      int
	roles       int
	err         error
}

func (f *fakeWarmer) Invalidate(context.Context) error {
	f.invalidated++
	return nil
}

func (f *fakeWarmer) Warm(context.Context) (int, error) {
	f.warmed++
	return f.roles, f.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRBACWarmupLoadsRoles(t *testing.T) {
	warmer := &fakeWarmer{roles: 3}
	job := NewRBACWarmupJob(warmer, quietLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task, err := NewRBACWarmupTask(RBACWarmupPayload{Reason: "seed", Invalidate: true})
	require.NoError(t, err)
	require.Equal(t, TaskRBACWarmup, task.Type())

	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, 1, warmer.invalidated)
	assert.Equal(t, 1, warmer.warmed)
}

func TestRBACWarmupEmptyPayloadSkipsInvalidate(t *testing.T) {
	warmer := &fakeWarmer{roles: 1}
	job := NewRBACWarmupJob(warmer, quietLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskRBACWarmup, nil)))
	assert.Zero(t, warmer.invalidated)
	assert.Equal(t, 1, warmer.warmed)
}

func TestRBACWarmupPropagatesFailure(t *testing.T) {
	boom := errors.New("store down")
	job := NewRBACWarmupJob(&fakeWarmer{err: boom}, quietLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))

	err := job.Handle(context.Background(), asynq.NewTask(TaskRBACWarmup, nil))
	assert.ErrorIs(t, err, boom)
}

func TestRBACWarmupRejectsMalformedPayload(t *testing.T) {
	warmer := &fakeWarmer{}
	job := NewRBACWarmupJob(warmer, quietLogger(), nil)

	err := job.Handle(context.Background(), asynq.NewTask(TaskRBACWarmup, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Zero(t, warmer.warmed)
}

func TestRBACWarmupNotConfigured(t *testing.T) {
	var job *RBACWarmupJob
	assert.Error(t, job.Handle(context.Background(), asynq.NewTask(TaskRBACWarmup, nil)))
}

func TestJobsHealthWithoutInspector(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(nil, quietLogger()).MountRoutes(r)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var body queueHealth
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, QueueDefault, body.Queue)
	assert.Zero(t, body.Pending)
}

func TestNewWorkerRegistersCron(t *testing.T) {
	task, err := NewRBACWarmupTask(RBACWarmupPayload{})
	require.NoError(t, err)

	worker, err := NewWorker(WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"},
		Handlers:  []TaskHandler{{Type: TaskRBACWarmup, Handler: NewRBACWarmupJob(&fakeWarmer{}, quietLogger(), nil).Handle}, {}},
		Cron:      []CronRegistration{{Spec: "*/10 * * * *", Task: task}},
	})
	require.NoError(t, err)
	assert.NotNil(t, worker.scheduler)

	_, err = NewWorker(WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"},
		Cron:      []CronRegistration{{Spec: "not a cron", Task: task}},
	})
	assert.Error(t, err)
}
