package tester

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
	"github.com/launchdarkly/go-sdk-common/v3/ldlogtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backendtester/harness/api/datastore"
	"github.com/backendtester/harness/api/mail"
	"github.com/backendtester/harness/api/taskqueue"
	"github.com/backendtester/harness/api/urlfetch"
	"github.com/backendtester/harness/apiproxy"
	"github.com/backendtester/harness/framework/helpers"
	"github.com/backendtester/harness/localapi"
	"github.com/backendtester/harness/provision"
	"github.com/backendtester/harness/wire"
)

func newLocalBackend(t *testing.T) *localapi.Proxy {
	t.Helper()
	registry, err := localapi.NewRegistry(provision.DefaultFactories()...)
	require.NoError(t, err)
	proxy, err := localapi.NewProxy(t.TempDir(), registry, []localapi.Manifest{
		localapi.NewManifest(wire.DatastoreService, "engine: memory\n"),
		localapi.NewManifest(wire.MailService, ""),
		localapi.NewManifest(wire.TaskQueueService, ""),
		localapi.NewManifest(wire.URLFetchService, ""),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = proxy.Close() })
	return proxy
}

func newTester(t *testing.T, backend apiproxy.Delegate, options ...Option) *Tester {
	t.Helper()
	tt, err := New(append([]Option{WithStore(apiproxy.NewStore()), WithBackend(backend)}, options...)...)
	require.NoError(t, err)
	return tt
}

func thing(name string) wire.Entity {
	return wire.Entity{Key: wire.NewKey("", "Thing", "", 0, nil)}.Set("name", name)
}

var testMessage = wire.MailMessage{ //nolint:gochecknoglobals
	Sender:   "sender@example.com",
	To:       []string{"someone@example.com"},
	Subject:  "P1",
	TextBody: "hello",
}

func TestExampleScenario(t *testing.T) {
	backend := newLocalBackend(t)
	tt := newTester(t, backend)
	store := tt.Store()
	envBefore, delegateBefore := store.Current()

	require.NoError(t, tt.SetUp(context.Background()))
	ctx := tt.Context(context.Background())

	keys, err := datastore.Put(ctx, thing("K1"))
	require.NoError(t, err)
	require.Len(t, keys, 1)
	k1 := keys[0]
	assert.False(t, k1.Incomplete())

	require.NoError(t, mail.Send(ctx, testMessage))

	assert.Equal(t, []wire.Key{k1}, tt.CreatedKeys())
	assert.Equal(t, []wire.MailMessage{testMessage}, tt.MailMessages())
	deletesBefore := backend.Counters().Count(wire.DatastoreService, wire.MethodDelete)

	require.NoError(t, tt.TearDown(context.Background()))

	assert.Empty(t, tt.MailMessages())
	assert.Empty(t, tt.CreatedKeys())
	assert.Equal(t, deletesBefore+1, backend.Counters().Count(wire.DatastoreService, wire.MethodDelete))

	envAfter, delegateAfter := store.Current()
	assert.True(t, envBefore.Equal(envAfter))
	assert.Equal(t, delegateBefore, delegateAfter)
	assert.False(t, store.Installed())

	resp, err := backend.MakeSyncCall(context.Background(), tt.Environment(), wire.DatastoreService, wire.MethodGet,
		wire.GetRequest{Keys: []wire.Key{k1}}.Encode())
	require.NoError(t, err)
	found, err := wire.DecodeGetResponse(resp)
	require.NoError(t, err)
	assert.Empty(t, found.Found)
}

func TestSwallowedEnqueueNeverReachesTheBackend(t *testing.T) {
	backend := newLocalBackend(t)
	tt := newTester(t, backend)
	require.NoError(t, tt.SetUp(context.Background()))
	defer tt.TearDown(context.Background())
	ctx := tt.Context(context.Background())

	for i := 0; i < 3; i++ {
		name, err := taskqueue.Add(ctx, wire.TaskAddRequest{URL: "/work"})
		require.NoError(t, err)
		assert.Equal(t, "", name)
	}

	assert.Equal(t, 0, backend.Counters().Count(wire.TaskQueueService, wire.MethodAdd))
	assert.Len(t, tt.Tasks(), 3)
	assert.Equal(t, wire.DefaultQueueName, tt.Tasks()[0].QueueName)
}

func TestSwallowedAsyncEnqueueNeverReachesTheBackend(t *testing.T) {
	backend := newLocalBackend(t)
	tt := newTester(t, backend)
	require.NoError(t, tt.SetUp(context.Background()))
	defer tt.TearDown(context.Background())
	ctx := tt.Context(context.Background())

	future := apiproxy.MakeAsyncCall(ctx, wire.TaskQueueService, wire.MethodAdd,
		wire.TaskAddRequest{QueueName: "mine", URL: "/later"}.Encode(), apiproxy.APIConfig{})

	helpers.RequireNever(t, func() bool {
		return backend.Counters().Count(wire.TaskQueueService, wire.MethodAdd) > 0
	}, time.Millisecond*50, time.Millisecond*5, "swallowed task reached the local task queue")

	_, err := future.Get()
	require.NoError(t, err)
	require.Len(t, tt.Tasks(), 1)
	assert.Equal(t, "/later", tt.Tasks()[0].URL)
}

func TestSyncAndAsyncWritesAreEquivalent(t *testing.T) {
	run := func(t *testing.T, put func(ctx context.Context, e wire.Entity) ([]wire.Key, error)) ([]wire.Key, int) {
		backend := newLocalBackend(t)
		tt := newTester(t, backend)
		require.NoError(t, tt.SetUp(context.Background()))
		ctx := tt.Context(context.Background())

		keys, err := put(ctx, wire.Entity{Key: wire.NewKey("", "Thing", "fixed", 0, nil)}.Set("n", int64(1)))
		require.NoError(t, err)
		created := tt.CreatedKeys()
		assert.Equal(t, keys, created)

		require.NoError(t, tt.TearDown(context.Background()))
		n, cerr := datastore.Count(apiproxy.WithStore(context.Background(), storeFor(backend)), "Thing")
		require.NoError(t, cerr)
		return created, n
	}

	syncKeys, syncCount := run(t, func(ctx context.Context, e wire.Entity) ([]wire.Key, error) {
		return datastore.Put(ctx, e)
	})
	asyncKeys, asyncCount := run(t, func(ctx context.Context, e wire.Entity) ([]wire.Key, error) {
		return datastore.PutAsync(ctx, e).Get()
	})
	assert.Equal(t, syncKeys, asyncKeys)
	assert.Equal(t, 0, syncCount)
	assert.Equal(t, syncCount, asyncCount)
}

// storeFor returns a store that talks straight to a backend with the default test app.
func storeFor(backend apiproxy.Delegate) *apiproxy.Store {
	s := apiproxy.NewStore()
	s.SetEnvironment(apiproxy.Environment{AppID: DefaultAppID})
	s.SetDelegate(backend)
	return s
}

func TestTearDownRollsBackOpenTransactions(t *testing.T) {
	backend := newLocalBackend(t)
	tt := newTester(t, backend)
	require.NoError(t, tt.SetUp(context.Background()))
	ctx := tt.Context(context.Background())

	tx1, err := datastore.BeginTransaction(ctx)
	require.NoError(t, err)
	_, err = tx1.Put(ctx, thing("in-txn"))
	require.NoError(t, err)
	_, err = datastore.BeginTransaction(ctx)
	require.NoError(t, err)

	open, err := datastore.ActiveTransactions(ctx, DefaultAppID)
	require.NoError(t, err)
	assert.Len(t, open, 2)

	require.NoError(t, tt.TearDown(context.Background()))

	open, err = datastore.ActiveTransactions(apiproxy.WithStore(context.Background(), storeFor(backend)), DefaultAppID)
	require.NoError(t, err)
	assert.Empty(t, open)
	assert.Equal(t, 2, backend.Counters().Count(wire.DatastoreService, wire.MethodRollback))
}

func TestTearDownRollsBackTransactionsOfOtherApplications(t *testing.T) {
	backend := newLocalBackend(t)
	tt := newTester(t, backend)
	require.NoError(t, tt.SetUp(context.Background()))

	other := apiproxy.NewStore()
	other.SetEnvironment(apiproxy.Environment{AppID: "other-app"})
	other.SetDelegate(backend)
	otherCtx := apiproxy.WithStore(context.Background(), other)
	_, err := datastore.BeginTransaction(otherCtx)
	require.NoError(t, err)
	_, err = datastore.BeginTransaction(tt.Context(context.Background()))
	require.NoError(t, err)

	require.NoError(t, tt.TearDown(context.Background()))

	open, err := datastore.ActiveTransactions(otherCtx, "")
	require.NoError(t, err)
	assert.Empty(t, open)
	assert.Equal(t, 2, backend.Counters().Count(wire.DatastoreService, wire.MethodRollback))
}

func TestUnreadableTransactionListIsLoggedAndReturned(t *testing.T) {
	next := &recordingDelegate{}
	next.respond = func(_, method string, _ []byte) ([]byte, error) {
		if method == wire.MethodActiveTransactions {
			return []byte{0x0a, 0x05}, nil
		}
		return nil, nil
	}
	testLog := ldlogtest.NewMockLog()
	defer testLog.DumpIfTestFailed(t)
	tt := newTester(t, next, WithLoggers(testLog.Loggers))
	require.NoError(t, tt.SetUp(context.Background()))

	err := tt.TearDown(context.Background())
	var teardownErr *TeardownError
	require.True(t, errors.As(err, &teardownErr))
	assert.Equal(t, "rollback", teardownErr.Step)
	var decodeErr *wire.DecodeError
	assert.True(t, errors.As(err, &decodeErr))
	assert.True(t, testLog.HasMessageMatch(ldlog.Warn, "Unable to read the list of open transactions"))
	assert.False(t, tt.Store().Installed())
}

func TestEveryWrittenKeyIsGoneAfterTearDown(t *testing.T) {
	backend := newLocalBackend(t)
	tt := newTester(t, backend)
	require.NoError(t, tt.SetUp(context.Background()))
	ctx := tt.Context(context.Background())

	var written []wire.Key
	for _, name := range []string{"a", "b", "c"} {
		keys, err := datastore.Put(ctx, thing(name))
		require.NoError(t, err)
		written = append(written, keys...)
	}
	keys, err := datastore.Put(ctx, wire.Entity{Key: wire.NewKey("", "Other", "named", 0, nil)})
	require.NoError(t, err)
	written = append(written, keys...)

	tx, err := datastore.BeginTransaction(ctx)
	require.NoError(t, err)
	keys, err = tx.Put(ctx, thing("committed"))
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))
	written = append(written, keys...)

	n, err := tt.Count(ctx, "Thing")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Len(t, tt.CreatedKeys(), 5)

	require.NoError(t, tt.TearDown(context.Background()))

	resp, err := backend.MakeSyncCall(context.Background(), apiproxy.Environment{AppID: DefaultAppID},
		wire.DatastoreService, wire.MethodGet, wire.GetRequest{Keys: written}.Encode())
	require.NoError(t, err)
	found, err := wire.DecodeGetResponse(resp)
	require.NoError(t, err)
	assert.Empty(t, found.Found)
	assert.Len(t, found.Missing, len(written))
}

func TestContextIsRestoredAfterTearDown(t *testing.T) {
	backend := newLocalBackend(t)
	original := &recordingDelegate{}
	store := apiproxy.NewStore()
	originalEnv := apiproxy.Environment{AppID: "outer", Email: "someone@example.com", LoggedIn: true}
	store.SetEnvironment(originalEnv)
	store.SetDelegate(original)

	tt, err := New(WithStore(store), WithBackend(backend))
	require.NoError(t, err)
	require.NoError(t, tt.SetUp(context.Background()))

	env, d := store.Current()
	assert.Equal(t, DefaultAppID, env.AppID)
	assert.Same(t, tt.Dispatcher(), d)
	assert.NotEmpty(t, env.RequestID)

	_, _ = datastore.Put(tt.Context(context.Background()), thing("x"))
	require.NoError(t, tt.TearDown(context.Background()))

	env, d = store.Current()
	assert.True(t, originalEnv.Equal(env))
	assert.Same(t, original, d)
	assert.Empty(t, original.recordedCalls())
}

func TestContextIsRestoredWhenTearDownFails(t *testing.T) {
	failing := &recordingDelegate{respond: func(service, method string, _ []byte) ([]byte, error) {
		switch method {
		case wire.MethodPut:
			return wire.PutResponse{Keys: []wire.Key{wire.NewKey("test", "Thing", "", 7, nil)}}.Encode(), nil
		case wire.MethodActiveTransactions, wire.MethodDelete:
			return nil, apiproxy.NewApplicationError(service, method, apiproxy.CodeInternalError, "backend is down")
		}
		return nil, nil
	}}
	testLog := ldlogtest.NewMockLog()
	defer testLog.DumpIfTestFailed(t)
	tt := newTester(t, failing, WithLoggers(testLog.Loggers))
	store := tt.Store()
	require.NoError(t, tt.SetUp(context.Background()))
	ctx := tt.Context(context.Background())

	_, err := datastore.Put(ctx, thing("x"))
	require.NoError(t, err)
	require.NoError(t, mail.Send(ctx, testMessage))

	err = tt.TearDown(context.Background())
	var te *TeardownError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "rollback", te.Step)
	var appErr *apiproxy.ApplicationError
	assert.True(t, errors.As(err, &appErr))

	assert.False(t, store.Installed())
	assert.Nil(t, store.CurrentDelegate())
	assert.Empty(t, tt.MailMessages())
	assert.Empty(t, tt.CreatedKeys())

	var methods []string
	for _, c := range failing.recordedCalls() {
		methods = append(methods, c.Method)
	}
	assert.Equal(t, []string{wire.MethodPut, wire.MethodSend, wire.MethodActiveTransactions, wire.MethodDelete}, methods)
	assert.True(t, testLog.HasMessageMatch(ldlog.Warn, "Unable to delete 1 entities"))
}

func TestRollbackFailuresDoNotStopTheOthers(t *testing.T) {
	active := wire.ActiveTransactionsResponse{Transactions: []wire.Transaction{
		{Handle: 1, App: DefaultAppID}, {Handle: 2, App: DefaultAppID}, {Handle: 3, App: DefaultAppID},
	}}
	var rolledBack []uint64
	next := &recordingDelegate{}
	next.respond = func(service, method string, request []byte) ([]byte, error) {
		switch method {
		case wire.MethodActiveTransactions:
			return active.Encode(), nil
		case wire.MethodRollback:
			txn, _ := wire.DecodeTransaction(request)
			rolledBack = append(rolledBack, txn.Handle)
			if txn.Handle != 3 {
				return nil, apiproxy.NewApplicationError(service, method, apiproxy.CodeNotFound, "txn %d", txn.Handle)
			}
		}
		return nil, nil
	}
	tt := newTester(t, next)
	require.NoError(t, tt.SetUp(context.Background()))

	err := tt.TearDown(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "txn 1")
	assert.Equal(t, []uint64{1, 2, 3}, rolledBack)
}

func TestTearDownWithoutSetUp(t *testing.T) {
	tt := newTester(t, &recordingDelegate{})
	assert.Equal(t, ErrNotSetUp, tt.TearDown(context.Background()))

	require.NoError(t, tt.SetUp(context.Background()))
	require.NoError(t, tt.TearDown(context.Background()))
	assert.Equal(t, ErrNotSetUp, tt.TearDown(context.Background()))

	_, err := tt.Count(context.Background(), "Thing")
	assert.Equal(t, ErrNotSetUp, err)
}

func TestSecondSetUpFails(t *testing.T) {
	store := apiproxy.NewStore()
	tt1, err := New(WithStore(store), WithBackend(&recordingDelegate{}))
	require.NoError(t, err)
	tt2, err := New(WithStore(store), WithBackend(&recordingDelegate{}))
	require.NoError(t, err)

	require.NoError(t, tt1.SetUp(context.Background()))
	assert.ErrorIs(t, tt1.SetUp(context.Background()), apiproxy.ErrInvalidState)
	assert.ErrorIs(t, tt2.SetUp(context.Background()), apiproxy.ErrInvalidState)
	require.NoError(t, tt1.TearDown(context.Background()))
}

func TestSetUpFailsWhenProvisioningFails(t *testing.T) {
	p := provision.NewProvisioner(provision.Config{
		LibDir:     t.TempDir(),
		StorageDir: t.TempDir(),
		Loggers:    ldlog.NewDisabledLoggers(),
	})
	store := apiproxy.NewStore()
	for i := 0; i < 2; i++ {
		tt, err := New(WithStore(store), WithProvisioner(p))
		require.NoError(t, err)
		err = tt.SetUp(context.Background())
		var ce *provision.ConfigError
		require.True(t, errors.As(err, &ce), "attempt %d: %v", i, err)
		assert.False(t, store.Installed())
	}
	assert.Equal(t, 1, p.Constructions())
}

func TestFetchHandler(t *testing.T) {
	backend := newLocalBackend(t)
	tt := newTester(t, backend, WithFetchHandler(StaticFetchHandler{Body: []byte("canned")}))
	require.NoError(t, tt.SetUp(context.Background()))
	defer tt.TearDown(context.Background())
	ctx := tt.Context(context.Background())

	resp, err := urlfetch.Get(ctx, "http://backend.invalid/data")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "canned", string(resp.Content))

	tt.SetFetchHandler(StaticFetchHandler{Body: []byte("gone"), Status: http.StatusNotFound})
	resp, err = urlfetch.Get(ctx, "http://backend.invalid/data")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, 0, backend.Counters().Count(wire.URLFetchService, wire.MethodFetch))
}

func TestLogRecordsReachTheBackend(t *testing.T) {
	next := &recordingDelegate{}
	tt := newTester(t, next)
	require.NoError(t, tt.SetUp(context.Background()))
	defer tt.TearDown(context.Background())

	apiproxy.Log(tt.Context(context.Background()), apiproxy.LogRecord{Level: apiproxy.LogLevelInfo, Message: "hello"})
	require.Len(t, next.logs, 1)
	assert.Equal(t, "hello", next.logs[0].Message)
}

func TestStart(t *testing.T) {
	backend := newLocalBackend(t)
	store := apiproxy.NewStore()
	var inner *Tester
	t.Run("test body", func(t *testing.T) {
		inner = Start(t, WithStore(store), WithBackend(backend))
		assert.True(t, store.Installed())
		_, err := datastore.Put(inner.Context(context.Background()), thing("x"))
		require.NoError(t, err)
	})
	assert.False(t, store.Installed())
	assert.Empty(t, inner.CreatedKeys())
}
