package store

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skidoodle/watchparty/internal/watch"
)

func setupMockPostgres(t *testing.T) (*Postgres, pgxmock.PgxPoolIface) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgres(mock), mock
}

func bodyRows(body string) *pgxmock.Rows {
	return pgxmock.NewRows([]string{"body"}).AddRow([]byte(body))
}

func TestPostgresMigrate(t *testing.T) {
	p, mock := setupMockPostgres(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS watch_documents").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("INSERT INTO watch_documents").
		WillReturnResult(pgxmock.NewResult("INSERT", 2))

	require.NoError(t, p.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRead(t *testing.T) {
	ctx := context.Background()

	t.Run("Queue", func(t *testing.T) {
		p, mock := setupMockPostgres(t)
		mock.ExpectQuery(regexp.QuoteMeta(selectSQL)).
			WithArgs("queue").
			WillReturnRows(bodyRows(`[{"videoId":"aaaaaaaaaaa","title":"A"}]`))

		queue, err := p.ReadQueue(ctx)
		require.NoError(t, err)
		require.Len(t, queue, 1)
		assert.Equal(t, "A", queue[0].Title)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("MissingRow", func(t *testing.T) {
		p, mock := setupMockPostgres(t)
		mock.ExpectQuery(regexp.QuoteMeta(selectSQL)).
			WithArgs("now_playing").
			WillReturnError(pgx.ErrNoRows)

		np, err := p.ReadNowPlaying(ctx)
		require.NoError(t, err)
		assert.True(t, np.Idle())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("QueryError", func(t *testing.T) {
		p, mock := setupMockPostgres(t)
		mock.ExpectQuery(regexp.QuoteMeta(selectSQL)).
			WithArgs("queue").
			WillReturnError(errors.New("connection reset"))

		_, err := p.ReadQueue(ctx)
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresWrite(t *testing.T) {
	p, mock := setupMockPostgres(t)

	mock.ExpectExec(regexp.QuoteMeta(upsertSQL)).
		WithArgs("queue", `[{"videoId":"aaaaaaaaaaa"}]`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := p.WriteQueue(context.Background(), []watch.QueueItem{{VideoID: "aaaaaaaaaaa"}})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdate(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		p, mock := setupMockPostgres(t)
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(selectForUpdateSQL)).
			WithArgs("queue").
			WillReturnRows(bodyRows(`[{"videoId":"aaaaaaaaaaa","title":"A"}]`))
		mock.ExpectQuery(regexp.QuoteMeta(selectForUpdateSQL)).
			WithArgs("now_playing").
			WillReturnRows(bodyRows(`{}`))
		mock.ExpectExec(regexp.QuoteMeta(upsertSQL)).
			WithArgs("queue", "[]").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec(regexp.QuoteMeta(upsertSQL)).
			WithArgs("now_playing", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectCommit()

		err := p.Update(ctx, func(docs *watch.Documents) error {
			docs.NowPlaying = watch.Promote(docs.Queue[0], watch.PlaybackStatus{Action: watch.ActionPlay})
			docs.Queue = docs.Queue[1:]
			return nil
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NoChangeRollsBack", func(t *testing.T) {
		p, mock := setupMockPostgres(t)
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(selectForUpdateSQL)).
			WithArgs("queue").
			WillReturnRows(bodyRows(`[]`))
		mock.ExpectQuery(regexp.QuoteMeta(selectForUpdateSQL)).
			WithArgs("now_playing").
			WillReturnRows(bodyRows(`{}`))
		mock.ExpectRollback()

		err := p.Update(ctx, func(*watch.Documents) error { return watch.ErrNoChange })
		assert.ErrorIs(t, err, watch.ErrNoChange)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("SelectErrorRollsBack", func(t *testing.T) {
		p, mock := setupMockPostgres(t)
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(selectForUpdateSQL)).
			WithArgs("queue").
			WillReturnError(errors.New("deadlock detected"))
		mock.ExpectRollback()

		err := p.Update(ctx, func(*watch.Documents) error { return nil })
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
