package localdatastore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
	"golang.org/x/exp/maps"

	"github.com/backendtester/harness/apiproxy"
	"github.com/backendtester/harness/localapi"
	"github.com/backendtester/harness/wire"
)

var errTransactionNotFound = errors.New("transaction not found or already finished")

// pending holds the buffered writes of an open transaction. A key is either in puts or in
// deletes, never both.
type pending struct {
	handle  wire.Transaction
	puts    map[string]wire.Entity
	deletes map[string]wire.Key
	order   []string
}

func (p *pending) put(e wire.Entity) {
	s := e.Key.String()
	if _, seen := p.puts[s]; !seen {
		if _, deleted := p.deletes[s]; !deleted {
			p.order = append(p.order, s)
		}
	}
	delete(p.deletes, s)
	p.puts[s] = e
}

func (p *pending) del(k wire.Key) {
	s := k.String()
	if _, seen := p.puts[s]; !seen {
		if _, deleted := p.deletes[s]; !deleted {
			p.order = append(p.order, s)
		}
	}
	delete(p.puts, s)
	p.deletes[s] = k
}

// Service is the local datastore.
type Service struct {
	*localapi.MethodTable
	storage    Storage
	txns       map[uint64]*pending
	lastHandle uint64
	loggers    ldlog.Loggers
	lock       sync.Mutex
}

// NewFactory returns the factory that builds the service from its manifest.
func NewFactory() localapi.Factory {
	return localapi.FactoryFunc{
		Name: wire.DatastoreService,
		Build: func(m localapi.Manifest, storageDir string, loggers ldlog.Loggers) (localapi.Service, error) {
			opts := DefaultOptions()
			if err := m.Decode(&opts); err != nil {
				return nil, err
			}
			return New(context.Background(), opts, storageDir, loggers)
		},
	}
}

// New opens the configured storage engine and returns the service.
func New(ctx context.Context, opts Options, storageDir string, loggers ldlog.Loggers) (*Service, error) {
	storage, err := NewStorage(ctx, opts, storageDir)
	if err != nil {
		return nil, err
	}
	loggers.Infof("Local datastore is using the %s engine", opts.Engine)
	return NewWithStorage(storage, loggers), nil
}

// NewWithStorage returns a service backed by an already opened engine.
func NewWithStorage(storage Storage, loggers ldlog.Loggers) *Service {
	s := &Service{
		MethodTable: localapi.NewMethodTable(wire.DatastoreService, loggers),
		storage:     storage,
		txns:        make(map[uint64]*pending),
		loggers:     loggers,
	}
	s.Add(wire.MethodGet, s.get)
	s.Add(wire.MethodPut, s.put)
	s.Add(wire.MethodDelete, s.delete)
	s.Add(wire.MethodRunQuery, s.runQuery)
	s.Add(wire.MethodBeginTransaction, s.beginTransaction)
	s.Add(wire.MethodCommit, s.commit)
	s.Add(wire.MethodRollback, s.rollback)
	s.Add(wire.MethodActiveTransactions, s.activeTransactions)
	return s
}

func (s *Service) Close() error {
	return s.storage.Close()
}

func badRequest(method string, err error) error {
	return localapi.BadRequest(wire.DatastoreService, method, err)
}

func internal(method string, err error) error {
	return localapi.Internal(wire.DatastoreService, method, err)
}

// txn returns the open transaction with the given handle. The caller must hold the lock.
func (s *Service) txn(method string, t *wire.Transaction) (*pending, error) {
	p, ok := s.txns[t.Handle]
	if !ok {
		return nil, badRequest(method, fmt.Errorf("%w: %d", errTransactionNotFound, t.Handle))
	}
	return p, nil
}

func (s *Service) put(ctx context.Context, env apiproxy.Environment, request []byte) ([]byte, error) {
	req, err := wire.DecodePutRequest(request)
	if err != nil {
		return nil, badRequest(wire.MethodPut, err)
	}
	entities := make([]wire.Entity, 0, len(req.Entities))
	for _, e := range req.Entities {
		if len(e.Key.Path) == 0 {
			return nil, badRequest(wire.MethodPut, errors.New("entity has an empty key"))
		}
		if e.Key.AppID == "" {
			e.Key.AppID = env.AppID
		}
		if e.Key.Incomplete() {
			id, err := s.storage.AllocateID(ctx, e.Key.AppID)
			if err != nil {
				return nil, internal(wire.MethodPut, err)
			}
			e.Key = e.Key.WithID(id)
		}
		entities = append(entities, e)
	}

	if req.Transaction != nil {
		s.lock.Lock()
		p, err := s.txn(wire.MethodPut, req.Transaction)
		if err == nil {
			for _, e := range entities {
				p.put(e)
			}
		}
		s.lock.Unlock()
		if err != nil {
			return nil, err
		}
	} else {
		for _, e := range entities {
			if err := s.storage.Put(ctx, e); err != nil {
				return nil, internal(wire.MethodPut, err)
			}
		}
	}

	resp := wire.PutResponse{Keys: make([]wire.Key, 0, len(entities))}
	for _, e := range entities {
		resp.Keys = append(resp.Keys, e.Key)
	}
	return resp.Encode(), nil
}

func (s *Service) get(ctx context.Context, env apiproxy.Environment, request []byte) ([]byte, error) {
	req, err := wire.DecodeGetRequest(request)
	if err != nil {
		return nil, badRequest(wire.MethodGet, err)
	}
	var overlay *pending
	if req.Transaction != nil {
		s.lock.Lock()
		p, err := s.txn(wire.MethodGet, req.Transaction)
		if err == nil {
			overlay = &pending{puts: maps.Clone(p.puts), deletes: maps.Clone(p.deletes)}
		}
		s.lock.Unlock()
		if err != nil {
			return nil, err
		}
	}

	var resp wire.GetResponse
	for _, k := range req.Keys {
		if k.AppID == "" {
			k.AppID = env.AppID
		}
		if overlay != nil {
			if e, ok := overlay.puts[k.String()]; ok {
				resp.Found = append(resp.Found, e)
				continue
			}
			if _, ok := overlay.deletes[k.String()]; ok {
				resp.Missing = append(resp.Missing, k)
				continue
			}
		}
		e, found, err := s.storage.Get(ctx, k)
		if err != nil {
			return nil, internal(wire.MethodGet, err)
		}
		if found {
			resp.Found = append(resp.Found, e)
		} else {
			resp.Missing = append(resp.Missing, k)
		}
	}
	return resp.Encode(), nil
}

func (s *Service) delete(ctx context.Context, env apiproxy.Environment, request []byte) ([]byte, error) {
	req, err := wire.DecodeDeleteRequest(request)
	if err != nil {
		return nil, badRequest(wire.MethodDelete, err)
	}
	keys := make([]wire.Key, 0, len(req.Keys))
	for _, k := range req.Keys {
		if k.AppID == "" {
			k.AppID = env.AppID
		}
		keys = append(keys, k)
	}
	if req.Transaction != nil {
		s.lock.Lock()
		p, err := s.txn(wire.MethodDelete, req.Transaction)
		if err == nil {
			for _, k := range keys {
				p.del(k)
			}
		}
		s.lock.Unlock()
		return nil, err
	}
	for _, k := range keys {
		if err := s.storage.Delete(ctx, k); err != nil {
			return nil, internal(wire.MethodDelete, err)
		}
	}
	return nil, nil
}

func (s *Service) runQuery(ctx context.Context, env apiproxy.Environment, request []byte) ([]byte, error) {
	req, err := wire.DecodeQueryRequest(request)
	if err != nil {
		return nil, badRequest(wire.MethodRunQuery, err)
	}
	if req.Kind == "" {
		return nil, badRequest(wire.MethodRunQuery, errors.New("query has no kind"))
	}
	app := req.App
	if app == "" {
		app = env.AppID
	}
	entities, err := s.storage.List(ctx, app, req.Namespace, req.Kind)
	if err != nil {
		return nil, internal(wire.MethodRunQuery, err)
	}
	sort.Slice(entities, func(i, j int) bool {
		return entities[i].Key.String() < entities[j].Key.String()
	})
	if req.Limit > 0 && int(req.Limit) < len(entities) {
		entities = entities[:req.Limit]
	}
	if req.KeysOnly {
		for i := range entities {
			entities[i].Properties = nil
		}
	}
	return wire.QueryResponse{Entities: entities}.Encode(), nil
}

func (s *Service) beginTransaction(_ context.Context, env apiproxy.Environment, request []byte) ([]byte, error) {
	req, err := wire.DecodeBeginTransactionRequest(request)
	if err != nil {
		return nil, badRequest(wire.MethodBeginTransaction, err)
	}
	app := req.App
	if app == "" {
		app = env.AppID
	}
	s.lock.Lock()
	s.lastHandle++
	t := wire.Transaction{Handle: s.lastHandle, App: app}
	s.txns[t.Handle] = &pending{
		handle:  t,
		puts:    make(map[string]wire.Entity),
		deletes: make(map[string]wire.Key),
	}
	s.lock.Unlock()
	return t.Encode(), nil
}

// finish removes an open transaction and returns it.
func (s *Service) finish(method string, request []byte) (*pending, error) {
	t, err := wire.DecodeTransaction(request)
	if err != nil {
		return nil, badRequest(method, err)
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	p, err := s.txn(method, &t)
	if err != nil {
		return nil, err
	}
	delete(s.txns, t.Handle)
	return p, nil
}

func (s *Service) commit(ctx context.Context, _ apiproxy.Environment, request []byte) ([]byte, error) {
	p, err := s.finish(wire.MethodCommit, request)
	if err != nil {
		return nil, err
	}
	for _, keyString := range p.order {
		if e, ok := p.puts[keyString]; ok {
			err = s.storage.Put(ctx, e)
		} else if k, ok := p.deletes[keyString]; ok {
			err = s.storage.Delete(ctx, k)
		}
		if err != nil {
			return nil, internal(wire.MethodCommit, err)
		}
	}
	return nil, nil
}

func (s *Service) rollback(_ context.Context, _ apiproxy.Environment, request []byte) ([]byte, error) {
	p, err := s.finish(wire.MethodRollback, request)
	if err != nil {
		return nil, err
	}
	s.loggers.Debugf("Rolled back transaction %d (%d buffered writes discarded)", p.handle.Handle, len(p.order))
	return nil, nil
}

func (s *Service) activeTransactions(_ context.Context, _ apiproxy.Environment, request []byte) ([]byte, error) {
	req, err := wire.DecodeActiveTransactionsRequest(request)
	if err != nil {
		return nil, badRequest(wire.MethodActiveTransactions, err)
	}
	var resp wire.ActiveTransactionsResponse
	s.lock.Lock()
	for _, p := range s.txns {
		if req.App == "" || p.handle.App == req.App {
			resp.Transactions = append(resp.Transactions, p.handle)
		}
	}
	s.lock.Unlock()
	sort.Slice(resp.Transactions, func(i, j int) bool {
		return resp.Transactions[i].Handle < resp.Transactions[j].Handle
	})
	return resp.Encode(), nil
}

// ActiveTransactionCount returns the number of open transactions.
func (s *Service) ActiveTransactionCount() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.txns)
}

// Storage returns the engine the service writes committed entities to.
func (s *Service) Storage() Storage {
	return s.storage
}
