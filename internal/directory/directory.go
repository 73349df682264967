// Package directory implements the public key directory: an upsert-and-lookup
// store mapping a username to a single public key blob, published by clients
// so peers can establish end-to-end encryption out of band. The relay never
// consults it; it is a sibling service sharing the HTTP server.
package directory

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when no record exists for the username.
var ErrNotFound = errors.New("no key record for username")

// ErrMissingFields is returned by Upsert when the username or key material is
// absent. Nothing is stored in that case.
var ErrMissingFields = errors.New("username and public_key_b64 required")

// Record is one published key. PublicKeyB64 is an opaque blob from the
// directory's point of view; clients store base64-exported public keys.
type Record struct {
	Username     string    `json:"username"`
	PublicKeyB64 string    `json:"public_key_b64"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Store is the persistence contract for the directory. Upsert is an
// idempotent overwrite: a second call for the same username replaces the
// stored key material and refreshes the timestamp.
type Store interface {
	Upsert(ctx context.Context, username, publicKeyB64 string) (Record, error)
	Get(ctx context.Context, username string) (Record, error)
	Close()
}

// validate enforces the shared Upsert precondition across store backends.
func validate(username, publicKeyB64 string) error {
	if username == "" || publicKeyB64 == "" {
		return ErrMissingFields
	}
	return nil
}
