package localdatastore

import (
	"context"
	"testing"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backendtester/harness/api/datastore"
	"github.com/backendtester/harness/apiproxy"
	"github.com/backendtester/harness/localapi"
	"github.com/backendtester/harness/wire"
)

func newTestContext(t *testing.T, manifest string) (context.Context, *localapi.Proxy) {
	registry, err := localapi.NewRegistry(NewFactory())
	require.NoError(t, err)
	proxy, err := localapi.NewProxy("", registry, []localapi.Manifest{
		localapi.NewManifest(wire.DatastoreService, manifest),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = proxy.Close() })

	store := apiproxy.NewStore()
	store.SetEnvironment(apiproxy.Environment{AppID: "app"})
	store.SetDelegate(proxy)
	return apiproxy.WithStore(context.Background(), store), proxy
}

func forBothLocalEngines(t *testing.T, action func(t *testing.T, ctx context.Context)) {
	for _, engine := range []string{EngineMemory, EngineSQLite} {
		t.Run(engine, func(t *testing.T) {
			ctx, _ := newTestContext(t, "engine: "+engine+"\nno_storage: true\n")
			action(t, ctx)
		})
	}
}

func TestPutAllocatesIDsForIncompleteKeys(t *testing.T) {
	forBothLocalEngines(t, func(t *testing.T, ctx context.Context) {
		keys, err := datastore.Put(ctx,
			wire.Entity{Key: wire.NewKey("", "Hoge", "", 0, nil)},
			wire.Entity{Key: wire.NewKey("", "Hoge", "", 0, nil)},
		)
		require.NoError(t, err)
		require.Len(t, keys, 2)
		for _, k := range keys {
			assert.False(t, k.Incomplete())
			assert.Equal(t, "app", k.AppID)
		}
		assert.NotEqual(t, keys[0].String(), keys[1].String())

		n, err := datastore.Count(ctx, "Hoge")
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})
}

func TestGetReportsFoundAndMissing(t *testing.T) {
	forBothLocalEngines(t, func(t *testing.T, ctx context.Context) {
		e := wire.Entity{Key: wire.NewKey("app", "Hoge", "a", 0, nil)}.Set("name", "x")
		_, err := datastore.Put(ctx, e)
		require.NoError(t, err)

		missing := wire.NewKey("app", "Hoge", "b", 0, nil)
		resp, err := datastore.Get(ctx, e.Key, missing)
		require.NoError(t, err)
		assert.Equal(t, []wire.Entity{e}, resp.Found)
		assert.Equal(t, []wire.Key{missing}, resp.Missing)
	})
}

func TestTransactionBuffersWritesUntilCommit(t *testing.T) {
	forBothLocalEngines(t, func(t *testing.T, ctx context.Context) {
		tx, err := datastore.BeginTransaction(ctx)
		require.NoError(t, err)

		keys, err := tx.Put(ctx, wire.Entity{Key: wire.NewKey("", "Hoge", "", 0, nil)})
		require.NoError(t, err)

		n, err := datastore.Count(ctx, "Hoge")
		require.NoError(t, err)
		assert.Equal(t, 0, n, "uncommitted write must not be visible")

		inTx, err := tx.Get(ctx, keys[0])
		require.NoError(t, err)
		assert.Len(t, inTx.Found, 1, "a transaction sees its own writes")

		require.NoError(t, tx.Commit(ctx))
		n, err = datastore.Count(ctx, "Hoge")
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})
}

func TestRollbackDiscardsWrites(t *testing.T) {
	forBothLocalEngines(t, func(t *testing.T, ctx context.Context) {
		tx, err := datastore.BeginTransaction(ctx)
		require.NoError(t, err)
		_, err = tx.Put(ctx, wire.Entity{Key: wire.NewKey("", "Hoge", "a", 0, nil)})
		require.NoError(t, err)

		active, err := datastore.ActiveTransactions(ctx, "app")
		require.NoError(t, err)
		assert.Equal(t, []wire.Transaction{tx.Handle()}, active)

		require.NoError(t, tx.Rollback(ctx))

		active, err = datastore.ActiveTransactions(ctx, "")
		require.NoError(t, err)
		assert.Len(t, active, 0)

		n, err := datastore.Count(ctx, "Hoge")
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})
}

func TestDeleteInTransaction(t *testing.T) {
	forBothLocalEngines(t, func(t *testing.T, ctx context.Context) {
		key := wire.NewKey("app", "Hoge", "a", 0, nil)
		_, err := datastore.Put(ctx, wire.Entity{Key: key})
		require.NoError(t, err)

		tx, err := datastore.BeginTransaction(ctx)
		require.NoError(t, err)
		require.NoError(t, tx.Delete(ctx, key))

		resp, err := tx.Get(ctx, key)
		require.NoError(t, err)
		assert.Len(t, resp.Found, 0)

		_, found, err := datastore.GetOne(ctx, key)
		require.NoError(t, err)
		assert.True(t, found)

		require.NoError(t, tx.Commit(ctx))
		_, found, err = datastore.GetOne(ctx, key)
		require.NoError(t, err)
		assert.False(t, found)
	})
}

func TestFinishingUnknownTransactionFails(t *testing.T) {
	forBothLocalEngines(t, func(t *testing.T, ctx context.Context) {
		tx, err := datastore.BeginTransaction(ctx)
		require.NoError(t, err)
		require.NoError(t, tx.Commit(ctx))

		err = tx.Rollback(ctx)
		var appErr *apiproxy.ApplicationError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, apiproxy.CodeBadRequest, appErr.Code)
		assert.ErrorContains(t, err, errTransactionNotFound.Error())
	})
}

func TestQueryKeysOnlyAndLimit(t *testing.T) {
	forBothLocalEngines(t, func(t *testing.T, ctx context.Context) {
		for _, name := range []string{"c", "a", "b"} {
			_, err := datastore.Put(ctx, wire.Entity{Key: wire.NewKey("", "Hoge", name, 0, nil)}.Set("p", name))
			require.NoError(t, err)
		}
		ents, err := datastore.Query(ctx, wire.QueryRequest{Kind: "Hoge", KeysOnly: true, Limit: 2})
		require.NoError(t, err)
		require.Len(t, ents, 2)
		assert.Equal(t, "a", ents[0].Key.Path[0].Name)
		assert.Equal(t, "b", ents[1].Key.Path[0].Name)
		assert.Len(t, ents[0].Properties, 0)
	})
}

func TestMalformedRequestIsBadRequest(t *testing.T) {
	ctx, _ := newTestContext(t, "engine: memory")
	_, err := apiproxy.MakeSyncCall(ctx, wire.DatastoreService, wire.MethodPut, []byte{0xff})
	var appErr *apiproxy.ApplicationError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apiproxy.CodeBadRequest, appErr.Code)
}

func TestUnknownMethodIsCallNotFound(t *testing.T) {
	ctx, _ := newTestContext(t, "engine: memory")
	_, err := apiproxy.MakeSyncCall(ctx, wire.DatastoreService, "AllocateIds", nil)
	var notFound *apiproxy.CallNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestFactoryRejectsBadManifest(t *testing.T) {
	f := NewFactory()
	_, err := f.New(localapi.NewManifest(wire.DatastoreService, "engine: cassandra"), "", ldlog.NewDisabledLoggers())
	assert.Error(t, err)

	_, err = f.New(localapi.NewManifest(wire.DatastoreService, "engin: memory"), "", ldlog.NewDisabledLoggers())
	assert.Error(t, err, "unknown manifest fields are rejected")
}
