package localdatastore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/backendtester/harness/wire"
)

// Each kind is one hash, "<prefix>:entities:<scope>", whose fields are canonical key strings.
// IDs come from the counter "<prefix>:ids:<app>".
type redisStorage struct {
	client *redis.Client
	prefix string
}

// NewRedisStorage connects to a redis server and checks that it answers.
func NewRedisStorage(ctx context.Context, opts RedisOptions) (Storage, error) {
	address := opts.Address
	if address == "" {
		address = defaultRedisAddress
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	client := redis.NewClient(&redis.Options{
		Addr: address,
		DB:   opts.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis at %s is not reachable: %w", address, err)
	}
	return &redisStorage{client: client, prefix: prefix}, nil
}

func (r *redisStorage) hashKey(scope string) string {
	return r.prefix + ":entities:" + scope
}

func (r *redisStorage) Get(ctx context.Context, key wire.Key) (wire.Entity, bool, error) {
	data, err := r.client.HGet(ctx, r.hashKey(keyScope(key)), key.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return wire.Entity{}, false, nil
	}
	if err != nil {
		return wire.Entity{}, false, err
	}
	e, err := wire.DecodeEntity(data)
	return e, err == nil, err
}

func (r *redisStorage) Put(ctx context.Context, entity wire.Entity) error {
	return r.client.HSet(ctx, r.hashKey(keyScope(entity.Key)), entity.Key.String(), wire.EncodeEntity(entity)).Err()
}

func (r *redisStorage) Delete(ctx context.Context, key wire.Key) error {
	return r.client.HDel(ctx, r.hashKey(keyScope(key)), key.String()).Err()
}

func (r *redisStorage) List(ctx context.Context, app, namespace, kind string) ([]wire.Entity, error) {
	values, err := r.client.HVals(ctx, r.hashKey(scopeOf(app, namespace, kind))).Result()
	if err != nil {
		return nil, err
	}
	items := make([][]byte, 0, len(values))
	for _, v := range values {
		items = append(items, []byte(v))
	}
	return decodeAll(items)
}

func (r *redisStorage) AllocateID(ctx context.Context, app string) (int64, error) {
	return r.client.Incr(ctx, r.prefix+":ids:"+app).Result()
}

func (r *redisStorage) Close() error {
	return r.client.Close()
}
