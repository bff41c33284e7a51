package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/ticketslave/ticketslave/internal/jobs"
)

type outbox struct {
	sent []Mail
	err  error
}

func (o *outbox) Send(_ context.Context, m Mail) error {
	if o.err != nil {
		return o.err
	}
	o.sent = append(o.sent, m)
	return nil
}

func resetTask(t *testing.T, payload PasswordResetMailPayload) *asynq.Task {
	t.Helper()
	task, err := NewPasswordResetMailTask(payload)
	require.NoError(t, err)
	require.Equal(t, TaskPasswordResetMail, task.Type())
	return task
}

func TestPasswordResetMailRendersLink(t *testing.T) {
	box := &outbox{}
	job := NewPasswordResetMailJob(box, "https://app.ticketslave.test/reset?lang=es", quietLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task := resetTask(t, PasswordResetMailPayload{Email: "ana@test.com", Token: "tok.en", ExpiresAt: time.Now().Add(15 * time.Minute)})
	require.NoError(t, job.Handle(context.Background(), task))

	require.Len(t, box.sent, 1)
	assert.Equal(t, "ana@test.com", box.sent[0].To)
	assert.Equal(t, "Reset your password", box.sent[0].Subject)
	assert.Contains(t, box.sent[0].HTML, `https://app.ticketslave.test/reset?lang=es&amp;token=tok.en`)
}

func TestPasswordResetMailSkipsExpiredToken(t *testing.T) {
	box := &outbox{}
	job := NewPasswordResetMailJob(box, "https://app.ticketslave.test/reset", quietLogger(), nil)

	task := resetTask(t, PasswordResetMailPayload{Email: "ana@test.com", Token: "tok", ExpiresAt: time.Now().Add(-time.Minute)})
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Empty(t, box.sent)
}

func TestPasswordResetMailErrors(t *testing.T) {
	box := &outbox{err: errors.New("smtp down")}
	job := NewPasswordResetMailJob(box, "https://app.ticketslave.test/reset", quietLogger(), nil)
	future := time.Now().Add(time.Minute)

	err := job.Handle(context.Background(), resetTask(t, PasswordResetMailPayload{Email: "ana@test.com", Token: "tok", ExpiresAt: future}))
	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry), "delivery failures are retried")

	err = job.Handle(context.Background(), asynq.NewTask(TaskPasswordResetMail, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = job.Handle(context.Background(), resetTask(t, PasswordResetMailPayload{Email: "ana@test.com", ExpiresAt: future}))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	bad := NewPasswordResetMailJob(&outbox{}, "not a url", quietLogger(), nil)
	err = bad.Handle(context.Background(), resetTask(t, PasswordResetMailPayload{Email: "ana@test.com", Token: "tok", ExpiresAt: future}))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}
