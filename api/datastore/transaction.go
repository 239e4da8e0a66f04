package datastore

import (
	"context"

	"github.com/backendtester/harness/wire"
)

// Tx is an open transaction. Writes made through it become visible when it is committed and are
// discarded when it is rolled back.
type Tx struct {
	handle wire.Transaction
}

// BeginTransaction opens a transaction in the current application.
func BeginTransaction(ctx context.Context) (*Tx, error) {
	resp, err := call(ctx, wire.MethodBeginTransaction, wire.BeginTransactionRequest{App: currentApp(ctx)}.Encode())
	if err != nil {
		return nil, err
	}
	t, err := wire.DecodeTransaction(resp)
	if err != nil {
		return nil, err
	}
	return &Tx{handle: t}, nil
}

// Handle returns the backend's handle for the transaction.
func (tx *Tx) Handle() wire.Transaction {
	return tx.handle
}

func (tx *Tx) Put(ctx context.Context, entities ...wire.Entity) ([]wire.Key, error) {
	return put(ctx, &tx.handle, entities)
}

func (tx *Tx) Get(ctx context.Context, keys ...wire.Key) (wire.GetResponse, error) {
	return get(ctx, &tx.handle, keys)
}

func (tx *Tx) Delete(ctx context.Context, keys ...wire.Key) error {
	return del(ctx, &tx.handle, keys)
}

func (tx *Tx) Commit(ctx context.Context) error {
	_, err := call(ctx, wire.MethodCommit, tx.handle.Encode())
	return err
}

func (tx *Tx) Rollback(ctx context.Context) error {
	_, err := call(ctx, wire.MethodRollback, tx.handle.Encode())
	return err
}
