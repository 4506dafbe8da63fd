package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/gymledger/internal/reconciliation/domain"
	"github.com/smallbiznis/gymledger/internal/testing/sqlitetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newEvent(id int64, providerEventID string) *domain.WebhookEvent {
	return &domain.WebhookEvent{
		ID:              snowflake.ID(id),
		Provider:        "stripe",
		ProviderEventID: providerEventID,
		EventType:       "invoice.paid",
		Payload:         datatypes.JSON(`{"id":"` + providerEventID + `"}`),
		ReceivedAt:      time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestInsertEventIsIdempotentPerProviderEvent(t *testing.T) {
	ctx := context.Background()
	db := sqlitetest.Open(t)
	r := Provide()

	inserted, err := r.InsertEvent(ctx, db, newEvent(1, "evt_1"))
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = r.InsertEvent(ctx, db, newEvent(2, "evt_1"))
	require.NoError(t, err)
	assert.False(t, inserted)

	found, err := r.FindEvent(ctx, db, "stripe", "evt_1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, snowflake.ID(1), found.ID)
}

func TestInsertEventUsesDialectConflictClause(t *testing.T) {
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       "gymledger:secret@tcp(127.0.0.1:3306)/gymledger?parseTime=true",
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
		Logger:               logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	var statement string
	require.NoError(t, db.Callback().Create().After("gorm:create").Register("test:capture_sql", func(tx *gorm.DB) {
		statement = tx.Statement.SQL.String()
	}))

	_, err = Provide().InsertEvent(context.Background(), db, newEvent(1, "evt_1"))
	require.NoError(t, err)
	assert.Contains(t, statement, "ON DUPLICATE KEY UPDATE")
	assert.NotContains(t, statement, "ON CONFLICT")
}
