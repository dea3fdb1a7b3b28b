package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/fueltax-backend/pkg/db/models"
	"github.com/angelmondragon/fueltax-backend/pkg/enums"
	"github.com/angelmondragon/fueltax-backend/pkg/logger"
	"github.com/angelmondragon/fueltax-backend/pkg/outbox/payloads"
)

func newOutboxDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	require.NoError(t, db.Exec(`CREATE TABLE outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME,
		published_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	)`).Error)
	return db
}

func TestServiceEmitWritesEnvelope(t *testing.T) {
	db := newOutboxDB(t)
	svc := NewService(NewRepository(db), logger.New(logger.Options{ServiceName: "test"}))

	receiptID := uuid.New()
	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventReceiptUploaded,
			AggregateType: enums.AggregateReceipt,
			AggregateID:   receiptID,
			Data:          payloads.ReceiptUploadedEvent{ReceiptID: receiptID, QuotaFiscalYear: "2024-2025"},
		})
	})
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	require.Equal(t, receiptID, rows[0].AggregateID)

	var decoded payloads.ReceiptUploadedEvent
	envelope, err := DecodeEnvelope(rows[0].Payload, &decoded)
	require.NoError(t, err)
	require.Equal(t, 1, envelope.Version)
	require.NotEmpty(t, envelope.EventID)
	require.Equal(t, "2024-2025", decoded.QuotaFiscalYear)
}

func TestServiceEmitRollsBackWithTransaction(t *testing.T) {
	db := newOutboxDB(t)
	svc := NewService(NewRepository(db), nil)

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventReceiptFailed,
			AggregateType: enums.AggregateReceipt,
			AggregateID:   uuid.New(),
			Data:          map[string]string{"k": "v"},
		}); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)

	var count int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestServiceEmitRequiresTransaction(t *testing.T) {
	svc := NewService(NewRepository(nil), nil)
	err := svc.Emit(context.Background(), nil, DomainEvent{EventType: enums.EventReceiptUploaded})
	require.Error(t, err)
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	db := newOutboxDB(t)
	repo := NewRepository(db)

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for i, id := range ids {
		require.NoError(t, repo.Insert(db, models.OutboxEvent{
			ID:            id,
			EventType:     enums.EventReceiptUploaded,
			AggregateType: enums.AggregateReceipt,
			AggregateID:   uuid.New(),
			Payload:       []byte(`{}`),
			CreatedAt:     base.Add(time.Duration(i) * time.Minute),
		}))
	}

	rows, err := repo.FetchUnpublishedForPublish(db, 10, 3)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, ids[0], rows[0].ID)

	require.NoError(t, repo.MarkPublishedTx(db, ids[0]))
	require.NoError(t, repo.MarkFailedTx(db, ids[1], errors.New("pubsub down")))
	require.NoError(t, repo.MarkTerminalTx(db, ids[2], errors.New("bad payload"), 3))

	rows, err = repo.FetchUnpublishedForPublish(db, 10, 3)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, ids[1], rows[0].ID)
	require.Equal(t, 1, rows[0].AttemptCount)
	require.NotNil(t, rows[0].LastError)

	deleted, err := repo.DeletePublishedBefore(context.Background(), db, base.Add(time.Hour*24*365*10), 3)
	require.NoError(t, err)
	require.EqualValues(t, 2, deleted)
}
