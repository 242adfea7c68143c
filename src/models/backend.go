package models

import (
	"context"
	"reflect"
)

// Backend defines the storage contract the document layer is built on. It
// knows collections and records, never models or schemas.
type Backend interface {
	// Save inserts values when id is nil and upserts otherwise. It returns
	// the id the record is stored under, in canonical form.
	Save(ctx context.Context, collection string, id interface{}, values Record) (string, error)

	Delete(ctx context.Context, collection string, id interface{}) (int, error)
	DeleteOne(ctx context.Context, collection string, query Query) (int, error)
	DeleteMany(ctx context.Context, collection string, query Query) (int, error)

	// LoadByID returns nil, nil when no record has the id.
	LoadByID(ctx context.Context, collection string, id interface{}) (Record, error)
	LoadOne(ctx context.Context, collection string, query Query, opts FindOptions) (Record, error)
	LoadMany(ctx context.Context, collection string, query Query, opts FindOptions) ([]Record, error)
	Count(ctx context.Context, collection string, query Query) (int, error)

	FindOneAndUpdate(ctx context.Context, collection string, query Query, values Record, opts UpdateOptions) (Record, error)
	FindOneAndDelete(ctx context.Context, collection string, query Query) (int, error)

	// NativeIDType is the Go type ids have inside the backend.
	NativeIDType() reflect.Type
	IsNativeID(value interface{}) bool
	ToCanonicalID(id interface{}) string
	// NativeID converts a canonical id back into the backend representation.
	NativeID(canonical string) interface{}

	Close(ctx context.Context) error
	DropDatabase(ctx context.Context) error
	ClearCollection(ctx context.Context, collection string) error
}
