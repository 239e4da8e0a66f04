package tester

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/launchdarkly/go-sdk-common/v3/ldlog"

	"github.com/backendtester/harness/api/datastore"
	"github.com/backendtester/harness/apiproxy"
	"github.com/backendtester/harness/framework/helpers"
	"github.com/backendtester/harness/provision"
	"github.com/backendtester/harness/wire"
)

// DefaultAppID is the application ID of the environment a Tester installs when it has no
// other environment to start from.
const DefaultAppID = "test"

// Tester brackets one test. SetUp installs a Dispatcher and a test environment in a Store, and
// TearDown undoes the test's side effects and restores what SetUp replaced.
type Tester struct {
	store        *apiproxy.Store
	table        *Table
	config       provision.Config
	provisioner  *provision.Provisioner
	backend      apiproxy.Delegate
	env          *apiproxy.Environment
	fetchHandler FetchHandler
	loggers      ldlog.Loggers

	ledger        *Ledger
	dispatcher    *Dispatcher
	testEnv       apiproxy.Environment
	savedEnv      apiproxy.Environment
	savedDelegate apiproxy.Delegate
	running       bool
	lock          sync.Mutex
}

// Option configures a Tester.
type Option helpers.ConfigOption[Tester]

// WithConfig sets the configuration used to provision the process-wide backend. It only has an
// effect if no backend has been provisioned yet.
func WithConfig(config provision.Config) Option {
	return helpers.OptionFunc[Tester](func(t *Tester) error {
		t.config = config
		return nil
	})
}

// WithProvisioner uses a specific Provisioner instead of the process-wide one.
func WithProvisioner(p *provision.Provisioner) Option {
	return helpers.OptionFunc[Tester](func(t *Tester) error {
		t.provisioner = p
		return nil
	})
}

// WithBackend forwards calls to the given delegate without provisioning anything.
func WithBackend(d apiproxy.Delegate) Option {
	return helpers.OptionFunc[Tester](func(t *Tester) error {
		if d == nil {
			return errors.New("backend must not be nil")
		}
		t.backend = d
		return nil
	})
}

// WithTable replaces DefaultTable().
func WithTable(table *Table) Option {
	return helpers.OptionFunc[Tester](func(t *Tester) error {
		t.table = table
		return nil
	})
}

// WithStore uses a Store other than apiproxy.Default(). Tests that run in parallel each need
// their own.
func WithStore(s *apiproxy.Store) Option {
	return helpers.OptionFunc[Tester](func(t *Tester) error {
		t.store = s
		return nil
	})
}

// WithEnvironment sets the environment installed by SetUp.
func WithEnvironment(env apiproxy.Environment) Option {
	return helpers.OptionFunc[Tester](func(t *Tester) error {
		e := env.Copy()
		t.env = &e
		return nil
	})
}

func WithFetchHandler(h FetchHandler) Option {
	return helpers.OptionFunc[Tester](func(t *Tester) error {
		t.fetchHandler = h
		return nil
	})
}

func WithLoggers(loggers ldlog.Loggers) Option {
	return helpers.OptionFunc[Tester](func(t *Tester) error {
		t.loggers = loggers
		return nil
	})
}

// New creates a Tester. Nothing is installed until SetUp.
func New(options ...Option) (*Tester, error) {
	t := &Tester{
		store:   apiproxy.Default(),
		table:   DefaultTable(),
		loggers: ldlog.NewDisabledLoggers(),
		ledger:  NewLedger(),
	}
	if err := helpers.ApplyOptions(t, options...); err != nil {
		return nil, err
	}
	return t, nil
}

// Start creates a Tester, sets it up, and arranges for TearDown to run when the test finishes.
// Any failure fails the test.
func Start(tb testing.TB, options ...Option) *Tester {
	tb.Helper()
	t, err := New(options...)
	if err != nil {
		tb.Fatalf("unable to create tester: %s", err)
	}
	if err := t.SetUp(context.Background()); err != nil {
		tb.Fatalf("unable to set up tester: %s", err)
	}
	tb.Cleanup(func() {
		if err := t.TearDown(context.Background()); err != nil {
			tb.Errorf("%s", err)
		}
	})
	return t
}

// DefaultEnvironment returns a fresh environment for a test that does not run inside a real
// backend.
func DefaultEnvironment() apiproxy.Environment {
	return apiproxy.Environment{
		AppID:      DefaultAppID,
		VersionID:  "1",
		RequestID:  uuid.NewString(),
		AuthDomain: "gmail.com",
	}
}

// SetUp obtains the backend, then installs a Dispatcher in front of it together with the test
// environment. It fails if the backend cannot be provisioned or if the Store already has
// something installed.
func (t *Tester) SetUp(ctx context.Context) error {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.running {
		return fmt.Errorf("tester is already set up: %w", apiproxy.ErrInvalidState)
	}

	next, remote, err := t.resolveBackend(ctx)
	if err != nil {
		return fmt.Errorf("unable to set up tester: %w", err)
	}

	savedEnv, savedDelegate := t.store.Current()
	var env apiproxy.Environment
	switch {
	case t.env != nil:
		env = t.env.Copy()
	case remote && !savedEnv.IsZero():
		env = savedEnv.Copy()
	default:
		env = DefaultEnvironment()
	}

	dispatcher := NewDispatcher(next, t.table, t.ledger, t.loggers)
	dispatcher.SetFetchHandler(t.fetchHandler)
	if err := t.store.Install(env, dispatcher); err != nil {
		return err
	}
	t.dispatcher = dispatcher
	t.testEnv = env
	t.savedEnv = savedEnv
	t.savedDelegate = savedDelegate
	t.running = true
	t.loggers.Debugf("Tester set up for app %q", env.AppID)
	return nil
}

func (t *Tester) resolveBackend(ctx context.Context) (apiproxy.Delegate, bool, error) {
	if t.backend != nil {
		return t.backend, false, nil
	}
	var (
		b   *provision.Backend
		err error
	)
	if t.provisioner != nil {
		b, err = t.provisioner.Ensure(ctx)
	} else {
		b, err = provision.Ensure(ctx, t.config)
	}
	if err != nil {
		return nil, false, err
	}
	return b.Delegate, b.Mode == provision.ModeRemote, nil
}

// TearDown rolls back every transaction the backend reports as open, whichever application
// began it, deletes every entity the test created, forgets captured mail and tasks, and
// restores the environment and delegate that SetUp replaced. The restore happens even if an
// earlier step fails; the first such failure is returned as a *TeardownError.
func (t *Tester) TearDown(ctx context.Context) error {
	t.lock.Lock()
	if !t.running {
		t.lock.Unlock()
		return ErrNotSetUp
	}
	t.running = false
	next := t.dispatcher.Next()
	env := t.testEnv
	savedEnv, savedDelegate := t.savedEnv, t.savedDelegate
	t.lock.Unlock()

	defer t.store.Restore(savedEnv, savedDelegate)

	var first error
	if err := t.rollbackActiveTransactions(ctx, next, env); err != nil {
		first = &TeardownError{Step: "rollback", Err: err}
	}
	if keys := t.ledger.CreatedKeys(); len(keys) > 0 {
		_, err := next.MakeSyncCall(ctx, env, wire.DatastoreService, wire.MethodDelete,
			wire.DeleteRequest{Keys: keys}.Encode())
		if err != nil {
			t.loggers.Warnf("Unable to delete %d entities created by the test: %s", len(keys), err)
			if first == nil {
				first = &TeardownError{Step: "delete", Err: err}
			}
		}
		t.ledger.clearKeys()
	}
	t.ledger.clearCaptures()
	return first
}

func (t *Tester) rollbackActiveTransactions(ctx context.Context, next apiproxy.Delegate, env apiproxy.Environment) error {
	resp, err := next.MakeSyncCall(ctx, env, wire.DatastoreService, wire.MethodActiveTransactions,
		wire.ActiveTransactionsRequest{}.Encode())
	if err != nil {
		var notFound *apiproxy.CallNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		t.loggers.Warnf("Unable to list open transactions: %s", err)
		return err
	}
	active, err := wire.DecodeActiveTransactionsResponse(resp)
	if err != nil {
		t.loggers.Warnf("Unable to read the list of open transactions: %s", err)
		return err
	}
	var first error
	for _, txn := range active.Transactions {
		if _, err := next.MakeSyncCall(ctx, env, wire.DatastoreService, wire.MethodRollback, txn.Encode()); err != nil {
			t.loggers.Warnf("Unable to roll back transaction %d: %s", txn.Handle, err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// Context returns a context whose backend calls go through this Tester's Store.
func (t *Tester) Context(parent context.Context) context.Context {
	return apiproxy.WithStore(parent, t.store)
}

// Store returns the Store that SetUp installs into.
func (t *Tester) Store() *apiproxy.Store {
	return t.store
}

// Environment returns the environment installed by the most recent SetUp.
func (t *Tester) Environment() apiproxy.Environment {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.testEnv.Copy()
}

// Ledger returns the record of the test's side effects.
func (t *Tester) Ledger() *Ledger {
	return t.ledger
}

// Dispatcher returns the installed Dispatcher, or nil before SetUp.
func (t *Tester) Dispatcher() *Dispatcher {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.dispatcher
}

func (t *Tester) CreatedKeys() []wire.Key { return t.ledger.CreatedKeys() }

func (t *Tester) MailMessages() []wire.MailMessage { return t.ledger.MailMessages() }

func (t *Tester) Tasks() []wire.TaskAddRequest { return t.ledger.Tasks() }

// SetFetchHandler answers URL fetches with h from now on; nil lets fetches through.
func (t *Tester) SetFetchHandler(h FetchHandler) {
	t.lock.Lock()
	t.fetchHandler = h
	d := t.dispatcher
	t.lock.Unlock()
	if d != nil {
		d.SetFetchHandler(h)
	}
}

// Count returns how many entities of a kind the current application has stored.
func (t *Tester) Count(ctx context.Context, kind string) (int, error) {
	t.lock.Lock()
	running := t.running
	t.lock.Unlock()
	if !running {
		return 0, ErrNotSetUp
	}
	return datastore.Count(t.Context(ctx), kind)
}
