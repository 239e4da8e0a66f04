package datastore

import (
	"context"

	"github.com/backendtester/harness/apiproxy"
	"github.com/backendtester/harness/wire"
)

func call(ctx context.Context, method string, request []byte) ([]byte, error) {
	return apiproxy.MakeSyncCall(ctx, wire.DatastoreService, method, request)
}

func currentApp(ctx context.Context) string {
	return apiproxy.StoreFrom(ctx).CurrentEnvironment().AppID
}

// withApp fills in the application ID of keys that have none.
func withApp(ctx context.Context, keys []wire.Key) []wire.Key {
	app := currentApp(ctx)
	ret := make([]wire.Key, len(keys))
	for i, k := range keys {
		if k.AppID == "" {
			k.AppID = app
		}
		ret[i] = k
	}
	return ret
}

func entitiesWithApp(ctx context.Context, entities []wire.Entity) []wire.Entity {
	ret := make([]wire.Entity, len(entities))
	for i, e := range entities {
		e.Key = withApp(ctx, []wire.Key{e.Key})[0]
		ret[i] = e
	}
	return ret
}

// Put stores entities and returns their keys, with IDs allocated for incomplete keys.
func Put(ctx context.Context, entities ...wire.Entity) ([]wire.Key, error) {
	return put(ctx, nil, entities)
}

func put(ctx context.Context, txn *wire.Transaction, entities []wire.Entity) ([]wire.Key, error) {
	req := wire.PutRequest{Entities: entitiesWithApp(ctx, entities), Transaction: txn}
	resp, err := call(ctx, wire.MethodPut, req.Encode())
	if err != nil {
		return nil, err
	}
	m, err := wire.DecodePutResponse(resp)
	if err != nil {
		return nil, err
	}
	return m.Keys, nil
}

// PendingPut is the result of PutAsync.
type PendingPut struct {
	future *apiproxy.Future
}

// PutAsync starts storing entities without waiting for the backend.
func PutAsync(ctx context.Context, entities ...wire.Entity) *PendingPut {
	req := wire.PutRequest{Entities: entitiesWithApp(ctx, entities)}
	return &PendingPut{
		future: apiproxy.MakeAsyncCall(ctx, wire.DatastoreService, wire.MethodPut, req.Encode(), apiproxy.APIConfig{}),
	}
}

// Get waits for the put to finish and returns the stored keys. A failure is reported as an
// *apiproxy.ExecutionError.
func (p *PendingPut) Get() ([]wire.Key, error) {
	resp, err := p.future.Get()
	if err != nil {
		return nil, err
	}
	m, err := wire.DecodePutResponse(resp)
	if err != nil {
		return nil, err
	}
	return m.Keys, nil
}

// Get looks up entities by key.
func Get(ctx context.Context, keys ...wire.Key) (wire.GetResponse, error) {
	return get(ctx, nil, keys)
}

func get(ctx context.Context, txn *wire.Transaction, keys []wire.Key) (wire.GetResponse, error) {
	req := wire.GetRequest{Keys: withApp(ctx, keys), Transaction: txn}
	resp, err := call(ctx, wire.MethodGet, req.Encode())
	if err != nil {
		return wire.GetResponse{}, err
	}
	return wire.DecodeGetResponse(resp)
}

// GetOne looks up a single entity; the boolean is false if it does not exist.
func GetOne(ctx context.Context, key wire.Key) (wire.Entity, bool, error) {
	resp, err := Get(ctx, key)
	if err != nil || len(resp.Found) == 0 {
		return wire.Entity{}, false, err
	}
	return resp.Found[0], true, nil
}

// Delete removes entities by key.
func Delete(ctx context.Context, keys ...wire.Key) error {
	return del(ctx, nil, keys)
}

func del(ctx context.Context, txn *wire.Transaction, keys []wire.Key) error {
	req := wire.DeleteRequest{Keys: withApp(ctx, keys), Transaction: txn}
	_, err := call(ctx, wire.MethodDelete, req.Encode())
	return err
}

// Query returns the entities of one kind. App defaults to the current application.
func Query(ctx context.Context, q wire.QueryRequest) ([]wire.Entity, error) {
	if q.App == "" {
		q.App = currentApp(ctx)
	}
	resp, err := call(ctx, wire.MethodRunQuery, q.Encode())
	if err != nil {
		return nil, err
	}
	m, err := wire.DecodeQueryResponse(resp)
	if err != nil {
		return nil, err
	}
	return m.Entities, nil
}

// Count returns the number of stored entities of one kind in the current application.
func Count(ctx context.Context, kind string) (int, error) {
	ents, err := Query(ctx, wire.QueryRequest{Kind: kind, KeysOnly: true})
	return len(ents), err
}

// ActiveTransactions lists the transactions of an application that are still open. An empty app
// means every application.
func ActiveTransactions(ctx context.Context, app string) ([]wire.Transaction, error) {
	resp, err := call(ctx, wire.MethodActiveTransactions, wire.ActiveTransactionsRequest{App: app}.Encode())
	if err != nil {
		return nil, err
	}
	m, err := wire.DecodeActiveTransactionsResponse(resp)
	if err != nil {
		return nil, err
	}
	return m.Transactions, nil
}
