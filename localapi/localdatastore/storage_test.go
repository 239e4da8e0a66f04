package localdatastore

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backendtester/harness/wire"
)

// Engines that need a server are only tested when the corresponding variable names one.
const (
	envRedis    = "HARNESS_TEST_REDIS"
	envDynamoDB = "HARNESS_TEST_DYNAMODB"
	envConsul   = "HARNESS_TEST_CONSUL"
)

type engineCase struct {
	name string
	open func(t *testing.T) Storage
}

func allEngines() []engineCase {
	return []engineCase{
		{"memory", func(t *testing.T) Storage { return NewMemoryStorage() }},
		{"sqlite in memory", func(t *testing.T) Storage {
			s, err := NewSQLiteStorage(context.Background(), "")
			require.NoError(t, err)
			return s
		}},
		{"sqlite file", func(t *testing.T) Storage {
			s, err := NewSQLiteStorage(context.Background(), t.TempDir())
			require.NoError(t, err)
			return s
		}},
		{"redis", func(t *testing.T) Storage {
			address := os.Getenv(envRedis)
			if address == "" {
				t.Skipf("set %s to test the redis engine", envRedis)
			}
			s, err := NewRedisStorage(context.Background(), RedisOptions{Address: address, Prefix: "test-" + uuid.NewString()})
			require.NoError(t, err)
			return s
		}},
		{"dynamodb", func(t *testing.T) Storage {
			endpoint := os.Getenv(envDynamoDB)
			if endpoint == "" {
				t.Skipf("set %s to test the dynamodb engine", envDynamoDB)
			}
			s, err := NewDynamoDBStorage(context.Background(), DynamoDBOptions{
				Table: "test-" + uuid.NewString(), Region: defaultRegion, Endpoint: endpoint,
			})
			require.NoError(t, err)
			return s
		}},
		{"consul", func(t *testing.T) Storage {
			address := os.Getenv(envConsul)
			if address == "" {
				t.Skipf("set %s to test the consul engine", envConsul)
			}
			s, err := NewConsulStorage(context.Background(), ConsulOptions{Address: address, Prefix: "test-" + uuid.NewString()})
			require.NoError(t, err)
			return s
		}},
	}
}

func forAllEngines(t *testing.T, action func(t *testing.T, s Storage)) {
	for _, e := range allEngines() {
		t.Run(e.name, func(t *testing.T) {
			s := e.open(t)
			defer func() { assert.NoError(t, s.Close()) }()
			action(t, s)
		})
	}
}

func makeEntity(kind, name string, props ...wire.Property) wire.Entity {
	return wire.Entity{Key: wire.NewKey("app", kind, name, 0, nil), Properties: props}
}

func TestStoragePutAndGet(t *testing.T) {
	forAllEngines(t, func(t *testing.T, s Storage) {
		ctx := context.Background()
		e := makeEntity("Hoge", "a", wire.Property{Name: "n", Value: int64(1)})
		require.NoError(t, s.Put(ctx, e))

		got, found, err := s.Get(ctx, e.Key)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, e, got)

		_, found, err = s.Get(ctx, wire.NewKey("app", "Hoge", "missing", 0, nil))
		require.NoError(t, err)
		assert.False(t, found)
	})
}

func TestStoragePutReplaces(t *testing.T) {
	forAllEngines(t, func(t *testing.T, s Storage) {
		ctx := context.Background()
		e := makeEntity("Hoge", "a", wire.Property{Name: "n", Value: int64(1)})
		require.NoError(t, s.Put(ctx, e))
		e2 := e.Set("n", int64(2))
		require.NoError(t, s.Put(ctx, e2))

		got, _, err := s.Get(ctx, e.Key)
		require.NoError(t, err)
		assert.Equal(t, e2, got)

		all, err := s.List(ctx, "app", "", "Hoge")
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})
}

func TestStorageDelete(t *testing.T) {
	forAllEngines(t, func(t *testing.T, s Storage) {
		ctx := context.Background()
		e := makeEntity("Hoge", "a")
		require.NoError(t, s.Put(ctx, e))
		require.NoError(t, s.Delete(ctx, e.Key))
		require.NoError(t, s.Delete(ctx, e.Key), "deleting a missing entity is not an error")

		_, found, err := s.Get(ctx, e.Key)
		require.NoError(t, err)
		assert.False(t, found)
	})
}

func TestStorageListIsScopedByKind(t *testing.T) {
	forAllEngines(t, func(t *testing.T, s Storage) {
		ctx := context.Background()
		require.NoError(t, s.Put(ctx, makeEntity("Hoge", "a")))
		require.NoError(t, s.Put(ctx, makeEntity("Hoge", "b")))
		require.NoError(t, s.Put(ctx, makeEntity("HogeTwo", "c")))
		other := makeEntity("Hoge", "d")
		other.Key.Namespace = "ns"
		require.NoError(t, s.Put(ctx, other))

		hoge, err := s.List(ctx, "app", "", "Hoge")
		require.NoError(t, err)
		assert.Len(t, hoge, 2)

		inNamespace, err := s.List(ctx, "app", "ns", "Hoge")
		require.NoError(t, err)
		assert.Len(t, inNamespace, 1)

		none, err := s.List(ctx, "other-app", "", "Hoge")
		require.NoError(t, err)
		assert.Len(t, none, 0)
	})
}

func TestStorageAllocateID(t *testing.T) {
	forAllEngines(t, func(t *testing.T, s Storage) {
		ctx := context.Background()
		id1, err := s.AllocateID(ctx, "app")
		require.NoError(t, err)
		id2, err := s.AllocateID(ctx, "app")
		require.NoError(t, err)
		assert.Greater(t, id1, int64(0))
		assert.Greater(t, id2, id1)
	})
}

func TestSQLiteFilePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewSQLiteStorage(ctx, dir)
	require.NoError(t, err)
	e := makeEntity("Hoge", "a")
	require.NoError(t, s.Put(ctx, e))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStorage(ctx, dir)
	require.NoError(t, err)
	defer s.Close()
	_, found, err := s.Get(ctx, e.Key)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestUnknownEngine(t *testing.T) {
	_, err := NewStorage(context.Background(), Options{Engine: "cassandra"}, "")
	assert.Error(t, err)
}
