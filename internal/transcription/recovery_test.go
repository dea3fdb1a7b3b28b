package transcription

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/fueltax-backend/pkg/enums"
)

func (h *harness) recovery(t *testing.T, maxAttempts int) *Recovery {
	t.Helper()
	r, err := NewRecovery(RecoveryParams{
		DB:          h.client,
		Jobs:        h.jobs,
		Receipts:    h.receipts,
		Outbox:      h.outbox,
		Lease:       5 * time.Minute,
		MaxAttempts: maxAttempts,
		Logger:      h.logg,
		Now:         func() time.Time { return h.now },
	})
	require.NoError(t, err)
	return r
}

func TestRecoveryRequeuesExpiredLease(t *testing.T) {
	h := newHarness(t)
	r := h.seed(t)
	_, err := h.jobs.Claim(context.Background(), h.db, "crashed", 1, h.now)
	require.NoError(t, err)

	res, err := h.recovery(t, 3).Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, res.Requeued, "lease has not expired yet")

	h.now = h.now.Add(10 * time.Minute)
	res, err = h.recovery(t, 3).Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Requeued)

	job := h.job(t, r.ID)
	assert.Equal(t, enums.JobStatusQueued, job.Status)
	assert.True(t, job.AvailableAt.Equal(h.now.Add(30*time.Second)))
	assert.Equal(t, enums.ProcessingStatusPending, h.reload(t, r.ID).ProcessingStatus)
}

func TestRecoveryDeadLettersExhaustedJobAndFailsReceipt(t *testing.T) {
	h := newHarness(t)
	r := h.seed(t)
	_, err := h.jobs.Claim(context.Background(), h.db, "crashed", 1, h.now)
	require.NoError(t, err)
	h.now = h.now.Add(10 * time.Minute)

	res, err := h.recovery(t, 1).Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Dead)

	assert.Equal(t, enums.JobStatusDead, h.job(t, r.ID).Status)
	got := h.reload(t, r.ID)
	assert.Equal(t, enums.ProcessingStatusFailed, got.ProcessingStatus)
	require.NotNil(t, got.ProcessingError)
	assert.Contains(t, *got.ProcessingError, "abandoned")
	assert.Equal(t, int64(1), h.events(t, enums.EventReceiptFailed))
}

func TestWorkerRunRecoversBeforePolling(t *testing.T) {
	h := newHarness(t)
	r := h.seed(t)
	_, err := h.jobs.Claim(context.Background(), h.db, "crashed", 1, h.now)
	require.NoError(t, err)
	h.now = h.now.Add(10 * time.Minute)

	w := h.worker(t, fixed(nil, nil), time.Second)
	w.recovery = h.recovery(t, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = w.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, enums.JobStatusDead, h.job(t, r.ID).Status)
}
