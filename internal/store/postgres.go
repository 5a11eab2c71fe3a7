package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"skidoodle/watchparty/internal/watch"
)

// DB is the subset of *pgxpool.Pool the postgres store uses. It can be
// mocked for testing.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

const (
	createTableSQL = `CREATE TABLE IF NOT EXISTS watch_documents (
	name       TEXT PRIMARY KEY,
	body       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`
	seedSQL = `INSERT INTO watch_documents (name, body) VALUES ('queue', '[]'), ('now_playing', '{}')
ON CONFLICT (name) DO NOTHING`
	selectSQL          = `SELECT body FROM watch_documents WHERE name = $1`
	selectForUpdateSQL = `SELECT body FROM watch_documents WHERE name = $1 FOR UPDATE`
	upsertSQL          = `INSERT INTO watch_documents (name, body, updated_at) VALUES ($1, $2, now())
ON CONFLICT (name) DO UPDATE SET body = EXCLUDED.body, updated_at = now()`
)

// Postgres keeps each document as a JSONB row in watch_documents. Updates
// lock both rows with SELECT ... FOR UPDATE.
type Postgres struct {
	db DB
}

// NewPostgres wraps an existing pool.
func NewPostgres(db DB) *Postgres {
	return &Postgres{db: db}
}

// OpenPostgres connects to url, pings it and runs Migrate.
func OpenPostgres(ctx context.Context, url string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	p := NewPostgres(pool)
	if err := p.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

// Migrate creates the table and seeds both documents.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, createTableSQL); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	if _, err := p.db.Exec(ctx, seedSQL); err != nil {
		return fmt.Errorf("seed documents: %w", err)
	}
	return nil
}

func scanBody(row pgx.Row, name string) ([]byte, error) {
	var body []byte
	err := row.Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", name, err)
	}
	return body, nil
}

func (p *Postgres) ReadQueue(ctx context.Context) ([]watch.QueueItem, error) {
	b, err := scanBody(p.db.QueryRow(ctx, selectSQL, queueKey), queueKey)
	if err != nil {
		return nil, err
	}
	return decodeQueue(b)
}

func (p *Postgres) WriteQueue(ctx context.Context, queue []watch.QueueItem) error {
	b, err := encodeQueue(queue)
	if err != nil {
		return err
	}
	if _, err := p.db.Exec(ctx, upsertSQL, queueKey, string(b)); err != nil {
		return fmt.Errorf("write queue: %w", err)
	}
	return nil
}

func (p *Postgres) ReadNowPlaying(ctx context.Context) (watch.NowPlaying, error) {
	b, err := scanBody(p.db.QueryRow(ctx, selectSQL, nowPlayingKey), nowPlayingKey)
	if err != nil {
		return watch.NowPlaying{}, err
	}
	return decodeNowPlaying(b)
}

func (p *Postgres) WriteNowPlaying(ctx context.Context, np watch.NowPlaying) error {
	b, err := encodeNowPlaying(np)
	if err != nil {
		return err
	}
	if _, err := p.db.Exec(ctx, upsertSQL, nowPlayingKey, string(b)); err != nil {
		return fmt.Errorf("write now playing: %w", err)
	}
	return nil
}

// Update runs fn in a transaction holding row locks on both documents.
func (p *Postgres) Update(ctx context.Context, fn watch.UpdateFunc) (err error) {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	qb, err := scanBody(tx.QueryRow(ctx, selectForUpdateSQL, queueKey), queueKey)
	if err != nil {
		return err
	}
	nb, err := scanBody(tx.QueryRow(ctx, selectForUpdateSQL, nowPlayingKey), nowPlayingKey)
	if err != nil {
		return err
	}
	docs, err := decodeDocuments(qb, nb)
	if err != nil {
		return err
	}
	c, err := watch.Apply(docs, fn)
	if err != nil {
		return err
	}
	queue, np, err := encodeChange(c)
	if err != nil {
		return err
	}
	if queue != nil {
		if _, err = tx.Exec(ctx, upsertSQL, queueKey, string(queue)); err != nil {
			return fmt.Errorf("write queue: %w", err)
		}
	}
	if np != nil {
		if _, err = tx.Exec(ctx, upsertSQL, nowPlayingKey, string(np)); err != nil {
			return fmt.Errorf("write now playing: %w", err)
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (p *Postgres) Close() error {
	p.db.Close()
	return nil
}
