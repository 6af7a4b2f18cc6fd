// Package store defines the document-store surface the migration engine
// works against, plus the MongoDB-backed implementation used to reach
// MongoDB deployments and Azure Cosmos DB accounts through the Mongo API.
package store

import (
	"context"
	"fmt"
)

// Record is one document as read from a container. Documents are opaque to
// the migration engine except for their identifier field.
type Record map[string]interface{}

// ID returns the record identifier as a string. MongoDB documents carry it
// in _id; documents that came through the Cosmos DB Mongo API keep an id
// field instead. Returns "" when neither field is present.
func (r Record) ID() string {
	if v, ok := r["_id"]; ok {
		return fmt.Sprint(v)
	}
	if v, ok := r["id"]; ok {
		return fmt.Sprint(v)
	}
	return ""
}

// Container is one named collection of records in the remote store.
type Container interface {
	// Name is the collection name, safe for logs and events.
	Name() string

	// Key identifies the physical container across deployments (host,
	// database and collection). Two references with equal keys point at
	// the same container.
	Key() string

	// Count returns the number of records currently in the container.
	Count(ctx context.Context) (int64, error)

	// Scan opens a forward-only cursor over every record. The cursor is
	// one-shot: it cannot be rewound or shared between runs.
	Scan(ctx context.Context) (Cursor, error)

	// Upsert creates or replaces the record identified by its id field.
	Upsert(ctx context.Context, rec Record) error
}

// Cursor iterates the records of one scan.
type Cursor interface {
	Next(ctx context.Context) bool
	Record() Record
	Err() error
	Close(ctx context.Context) error
}
