package localdatastore

import (
	"context"
	"strconv"

	"github.com/backendtester/harness/wire"
)

// Storage is where committed entities live. Implementations must be safe for concurrent use.
type Storage interface {
	// Get returns the entity with the given key, or false if there is none.
	Get(ctx context.Context, key wire.Key) (wire.Entity, bool, error)
	// Put creates or replaces an entity. Its key is always complete.
	Put(ctx context.Context, entity wire.Entity) error
	// Delete removes an entity. Deleting a missing entity is not an error.
	Delete(ctx context.Context, key wire.Key) error
	// List returns every entity of one kind, in any order.
	List(ctx context.Context, app, namespace, kind string) ([]wire.Entity, error)
	// AllocateID returns a new numeric ID, unique within the application.
	AllocateID(ctx context.Context, app string) (int64, error)
	Close() error
}

// NewStorage opens the engine selected by the options.
func NewStorage(ctx context.Context, opts Options, storageDir string) (Storage, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	switch opts.Engine {
	case EngineMemory:
		return NewMemoryStorage(), nil
	case EngineRedis:
		return NewRedisStorage(ctx, opts.Redis)
	case EngineDynamoDB:
		return NewDynamoDBStorage(ctx, opts.DynamoDB)
	case EngineConsul:
		return NewConsulStorage(ctx, opts.Consul)
	default:
		path := ""
		if !opts.NoStorage {
			path = storageDir
		}
		return NewSQLiteStorage(ctx, path)
	}
}

// scopeOf returns the string that groups all entities of one kind.
func scopeOf(app, namespace, kind string) string {
	return strconv.Quote(app) + "/" + strconv.Quote(namespace) + "/" + strconv.Quote(kind)
}

func keyScope(k wire.Key) string {
	return scopeOf(k.AppID, k.Namespace, k.Kind())
}

func decodeAll(items [][]byte) ([]wire.Entity, error) {
	ret := make([]wire.Entity, 0, len(items))
	for _, data := range items {
		e, err := wire.DecodeEntity(data)
		if err != nil {
			return nil, err
		}
		ret = append(ret, e)
	}
	return ret, nil
}
