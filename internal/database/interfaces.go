package database

import (
	"context"
	"errors"
	"fmt"

	"devlink-realtime/internal/config"
)

// ErrInvalidUserID is returned when an id is not in the store's format.
var ErrInvalidUserID = errors.New("malformed user id")

// UserStore answers whether an authenticated identity is a known user.
// Accounts themselves are managed by the REST service.
type UserStore interface {
	UserExists(ctx context.Context, userID string) (bool, error)
	Close() error
}

// Open connects the user store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (UserStore, error) {
	switch cfg.Driver {
	case config.StoreMongo:
		db, err := NewMongoDB(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection)
		if err != nil {
			return nil, err
		}
		return db, nil
	case config.StorePostgres:
		db, err := NewPostgresDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported user store %q", cfg.Driver)
	}
}
