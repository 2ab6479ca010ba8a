package domain

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Store keeps credential material for data sources. Secrets never leave the
// store except towards warehouse collaborators.
type Store interface {
	Put(ctx context.Context, dataSourceID uuid.UUID, secret map[string]any) error
	// Get returns the secret for dataSourceID. bigquery sources without a
	// stored secret fall back to the service account from the environment.
	Get(ctx context.Context, dataSourceID uuid.UUID, sourceType string) (map[string]any, error)
	Delete(ctx context.Context, dataSourceID uuid.UUID) error
}

var (
	ErrNotFound             = errors.New("credentials_not_found")
	ErrEncryptionKeyMissing = errors.New("encryption_key_missing")
	ErrInvalidSecret        = errors.New("invalid_credentials")
	ErrCorrupted            = errors.New("credentials_corrupted")
)
