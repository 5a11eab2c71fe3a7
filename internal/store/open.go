package store

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Options selects and configures a backend.
type Options struct {
	Kind        string
	DataDir     string
	RedisURL    string
	RedisPrefix string
	DatabaseURL string
}

// Open returns the backend named by opts.Kind.
func Open(ctx context.Context, opts Options) (Backend, error) {
	entry := log.WithField("store", opts.Kind)
	switch opts.Kind {
	case "", "memory":
		entry.Info("using in-memory store")
		return NewMemory(), nil
	case "pebble":
		entry.WithField("dir", opts.DataDir).Info("opening pebble store")
		p, err := OpenPebble(opts.DataDir)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "redis":
		entry.Info("connecting to redis store")
		r, err := OpenRedis(ctx, opts.RedisURL, opts.RedisPrefix)
		if err != nil {
			return nil, err
		}
		return r, nil
	case "postgres":
		entry.Info("connecting to postgres store")
		p, err := OpenPostgres(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown store %q", opts.Kind)
	}
}
