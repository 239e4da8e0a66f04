package apiproxy

import (
	"context"
	"errors"
	"testing"

	"github.com/launchdarkly/go-sdk-common/v3/ldvalue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoDelegate struct {
	name  string
	calls []Call
	logs  []LogRecord
	envs  []Environment
}

func (d *echoDelegate) MakeSyncCall(_ context.Context, env Environment, service, method string, request []byte) ([]byte, error) {
	d.calls = append(d.calls, Call{Service: service, Method: method, Payload: request})
	d.envs = append(d.envs, env)
	return append([]byte(d.name+":"), request...), nil
}

func (d *echoDelegate) MakeAsyncCall(ctx context.Context, env Environment, service, method string, request []byte,
	_ APIConfig) *Future {
	return Go(func() ([]byte, error) { return d.MakeSyncCall(ctx, env, service, method, request) })
}

func (d *echoDelegate) Log(_ context.Context, _ Environment, record LogRecord) {
	d.logs = append(d.logs, record)
}

func TestStoreInstallAndRestore(t *testing.T) {
	s := NewStore()
	original := &echoDelegate{name: "original"}
	originalEnv := Environment{AppID: "app"}
	s.SetDelegate(original)
	s.SetEnvironment(originalEnv)

	savedEnv, savedDelegate := s.Current()

	testDelegate := &echoDelegate{name: "test"}
	testEnv := Environment{AppID: "test-app", Email: "test@example.com"}
	require.NoError(t, s.Install(testEnv, testDelegate))
	assert.True(t, s.Installed())
	assert.Equal(t, testEnv, s.CurrentEnvironment())
	assert.Same(t, testDelegate, s.CurrentDelegate())

	s.Restore(savedEnv, savedDelegate)
	assert.False(t, s.Installed())
	assert.Equal(t, originalEnv, s.CurrentEnvironment())
	assert.Same(t, original, s.CurrentDelegate())
}

func TestStoreRejectsNestedInstall(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Install(Environment{}, &echoDelegate{}))

	err := s.Install(Environment{}, &echoDelegate{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidState))

	s.Restore(Environment{}, nil)
	assert.NoError(t, s.Install(Environment{}, &echoDelegate{}))
}

func TestStoreRejectsNilDelegate(t *testing.T) {
	err := NewStore().Install(Environment{}, nil)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestStoreFromContext(t *testing.T) {
	assert.Same(t, Default(), StoreFrom(context.Background()))

	s := NewStore()
	assert.Same(t, s, StoreFrom(WithStore(context.Background(), s)))
}

func TestMakeSyncCallUsesCurrentDelegateAndEnvironment(t *testing.T) {
	s := NewStore()
	d := &echoDelegate{name: "d"}
	env := Environment{AppID: "app", LoggedIn: true}
	require.NoError(t, s.Install(env, d))
	ctx := WithStore(context.Background(), s)

	out, err := MakeSyncCall(ctx, "svc", "Method", []byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, "d:payload", string(out))
	require.Len(t, d.envs, 1)
	assert.Equal(t, env, d.envs[0])

	out, err = MakeAsyncCall(ctx, "svc", "Method", []byte("async"), APIConfig{}).Get()
	require.NoError(t, err)
	assert.Equal(t, "d:async", string(out))

	Log(ctx, LogRecord{Level: LogLevelWarn, Message: "hello"})
	require.Len(t, d.logs, 1)
	assert.Equal(t, "hello", d.logs[0].Message)
}

func TestMakeSyncCallWithoutDelegate(t *testing.T) {
	ctx := WithStore(context.Background(), NewStore())

	_, err := MakeSyncCall(ctx, "svc", "Method", nil)
	assert.ErrorIs(t, err, ErrNoDelegate)

	_, err = MakeAsyncCall(ctx, "svc", "Method", nil, APIConfig{}).Get()
	assert.ErrorIs(t, err, ErrNoDelegate)
}

func TestEnvironmentValueSemantics(t *testing.T) {
	base := Environment{AppID: "app"}.WithAttribute("tenant", ldvalue.String("a"))
	changed := base.WithAttribute("tenant", ldvalue.String("b"))

	assert.Equal(t, "a", base.Attribute("tenant").StringValue())
	assert.Equal(t, "b", changed.Attribute("tenant").StringValue())
	assert.False(t, base.Equal(changed))
	assert.True(t, base.Equal(Environment{AppID: "app"}.WithAttribute("tenant", ldvalue.String("a"))))
	assert.True(t, Environment{}.IsZero())
	assert.False(t, base.IsZero())
}
