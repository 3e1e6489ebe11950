package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/anonchat/anonchat-backend/internal/models"
	"github.com/anonchat/anonchat-backend/pkg/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newArchive(t *testing.T) (*ConversationArchiveRepository, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return NewConversationArchiveRepository(&database.DB{DB: db}), mock
}

func TestConversationArchive_EnsureSchema(t *testing.T) {
	archive, mock := newArchive(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS anon_conversations").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, archive.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConversationArchive_Save(t *testing.T) {
	archive, mock := newArchive(t)

	createdAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	endedAt := createdAt.Add(3 * time.Minute)
	endedBy := "u1"
	conv := &models.Conversation{
		ID:             "conv-1",
		ParticipantIDs: []string{"u1", "u2"},
		SharedInterest: "coding",
		Status:         models.ConversationStatusEnded,
		EndedBy:        &endedBy,
		CreatedAt:      createdAt,
		EndedAt:        &endedAt,
	}

	mock.ExpectExec("INSERT INTO anon_conversations").
		WithArgs("conv-1", sqlmock.AnyArg(), "coding", "ended", "u1", createdAt, endedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, archive.Save(context.Background(), conv))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConversationArchive_SaveError(t *testing.T) {
	archive, mock := newArchive(t)

	mock.ExpectExec("INSERT INTO anon_conversations").
		WillReturnError(errors.New("connection reset"))

	err := archive.Save(context.Background(), &models.Conversation{
		ID:             "conv-1",
		ParticipantIDs: []string{"u1", "u2"},
		Status:         models.ConversationStatusEnded,
	})
	assert.ErrorContains(t, err, "failed to archive conversation")
}

func TestConversationArchive_CountBySharedInterest(t *testing.T) {
	archive, mock := newArchive(t)

	rows := sqlmock.NewRows([]string{"shared_interest", "count"}).
		AddRow("music", 12).
		AddRow("coding", 7)
	mock.ExpectQuery("SELECT shared_interest, COUNT").
		WithArgs(5).
		WillReturnRows(rows)

	counts, err := archive.CountBySharedInterest(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"music": 12, "coding": 7}, counts)
	assert.NoError(t, mock.ExpectationsWereMet())
}
