// Package store is the Object Store Adapter: a narrow,
// typed get/put/list/delete interface over an S3-like flat key namespace.
// Callers never see bucket/auth/retry concerns — those live in the
// concrete implementation, grounded on the same aws-sdk-go-v2 S3 client
// AIStore and the launix-de-memcp pack repo both use for
// S3-compatible object access.
package store

import (
	"context"

	"github.com/roylkng/genai-vectors/cmn/cos"
)

// Adapter is the interface every other package in this module depends on.
// Slashes in keys are purely conventional; the namespace is flat.
type Adapter interface {
	// Get returns the bytes at key, or a *cos.ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put overwrites key with data in a single whole-object write.
	Put(ctx context.Context, key string, data []byte) error
	// Append performs a logical append: read-modify-write with
	// last-writer-wins, per the design
	Append(ctx context.Context, key string, data []byte) error
	// List returns every key with the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// notFound is a sentinel helper so implementations share one error shape.
func notFound(key string) error { return cos.NewErrNotFound("object %s", key) }
