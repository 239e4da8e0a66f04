package wire

import "google.golang.org/protobuf/encoding/protowire"

// DatastoreService is the name of the datastore backend service.
const DatastoreService = "datastore_v3"

// Datastore methods.
const (
	MethodGet                = "Get"
	MethodPut                = "Put"
	MethodDelete             = "Delete"
	MethodRunQuery           = "RunQuery"
	MethodBeginTransaction   = "BeginTransaction"
	MethodCommit             = "Commit"
	MethodRollback           = "Rollback"
	MethodActiveTransactions = "ActiveTransactions"
)

// Transaction is a handle to a transaction owned by the datastore backend.
type Transaction struct {
	Handle uint64
	App    string
}

// Encode encodes the transaction. Commit and Rollback take a Transaction as their request, and
// BeginTransaction returns one.
func (t Transaction) Encode() []byte {
	var e encoder
	encodeTransaction(&e, t)
	return e.b
}

func encodeTransaction(e *encoder, t Transaction) {
	e.uint64(1, t.Handle)
	e.string(2, t.App)
}

// DecodeTransaction decodes a transaction handle.
func DecodeTransaction(data []byte) (Transaction, error) {
	var t Transaction
	err := eachField("Transaction", data, func(f field) (err error) {
		switch f.num {
		case 1:
			t.Handle, err = f.asUint64("handle")
		case 2:
			t.App, err = f.asString("app")
		}
		return err
	})
	return t, err
}

func encodeOptionalTransaction(e *encoder, num protowire.Number, t *Transaction) {
	if t != nil {
		e.message(num, func(e *encoder) { encodeTransaction(e, *t) })
	}
}

func decodeTransactionField(f field) (*Transaction, error) {
	data, err := f.asMessage("transaction")
	if err != nil {
		return nil, err
	}
	t, err := DecodeTransaction(data)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// PutRequest stores entities, optionally inside a transaction.
type PutRequest struct {
	Entities    []Entity
	Transaction *Transaction
}

func (m PutRequest) Encode() []byte {
	var e encoder
	for _, ent := range m.Entities {
		ent := ent
		e.message(1, func(e *encoder) { encodeEntity(e, ent) })
	}
	encodeOptionalTransaction(&e, 2, m.Transaction)
	return e.b
}

func DecodePutRequest(data []byte) (PutRequest, error) {
	var m PutRequest
	err := eachField("PutRequest", data, func(f field) (err error) {
		switch f.num {
		case 1:
			var ent Entity
			ent, err = decodeEntityField("entity", f)
			m.Entities = append(m.Entities, ent)
		case 2:
			m.Transaction, err = decodeTransactionField(f)
		}
		return err
	})
	return m, err
}

// PutResponse lists the keys of the stored entities, in request order, with IDs allocated for
// incomplete keys.
type PutResponse struct {
	Keys []Key
}

func (m PutResponse) Encode() []byte {
	var e encoder
	encodeKeys(&e, 1, m.Keys)
	return e.b
}

func DecodePutResponse(data []byte) (PutResponse, error) {
	var m PutResponse
	err := eachField("PutResponse", data, func(f field) (err error) {
		if f.num == 1 {
			var k Key
			k, err = decodeKeyField("key", f)
			m.Keys = append(m.Keys, k)
		}
		return err
	})
	return m, err
}

// ExtractCreatedKeys returns the set of keys a successful put created or overwrote, given the
// encoded PutResponse. Duplicate keys are reported once, in first-seen order.
func ExtractCreatedKeys(putResponse []byte) ([]Key, error) {
	m, err := DecodePutResponse(putResponse)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(m.Keys))
	ret := make([]Key, 0, len(m.Keys))
	for _, k := range m.Keys {
		s := k.String()
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		ret = append(ret, k)
	}
	return ret, nil
}

// GetRequest looks up entities by key.
type GetRequest struct {
	Keys        []Key
	Transaction *Transaction
}

func (m GetRequest) Encode() []byte {
	var e encoder
	encodeKeys(&e, 1, m.Keys)
	encodeOptionalTransaction(&e, 2, m.Transaction)
	return e.b
}

func DecodeGetRequest(data []byte) (GetRequest, error) {
	var m GetRequest
	err := eachField("GetRequest", data, func(f field) (err error) {
		switch f.num {
		case 1:
			var k Key
			k, err = decodeKeyField("key", f)
			m.Keys = append(m.Keys, k)
		case 2:
			m.Transaction, err = decodeTransactionField(f)
		}
		return err
	})
	return m, err
}

// GetResponse reports which of the requested keys were found.
type GetResponse struct {
	Found   []Entity
	Missing []Key
}

func (m GetResponse) Encode() []byte {
	var e encoder
	for _, ent := range m.Found {
		ent := ent
		e.message(1, func(e *encoder) { encodeEntity(e, ent) })
	}
	encodeKeys(&e, 2, m.Missing)
	return e.b
}

func DecodeGetResponse(data []byte) (GetResponse, error) {
	var m GetResponse
	err := eachField("GetResponse", data, func(f field) (err error) {
		switch f.num {
		case 1:
			var ent Entity
			ent, err = decodeEntityField("found", f)
			m.Found = append(m.Found, ent)
		case 2:
			var k Key
			k, err = decodeKeyField("missing", f)
			m.Missing = append(m.Missing, k)
		}
		return err
	})
	return m, err
}

// DeleteRequest removes entities by key. Deleting a key that does not exist is not an error.
type DeleteRequest struct {
	Keys        []Key
	Transaction *Transaction
}

func (m DeleteRequest) Encode() []byte {
	var e encoder
	encodeKeys(&e, 1, m.Keys)
	encodeOptionalTransaction(&e, 2, m.Transaction)
	return e.b
}

func DecodeDeleteRequest(data []byte) (DeleteRequest, error) {
	var m DeleteRequest
	err := eachField("DeleteRequest", data, func(f field) (err error) {
		switch f.num {
		case 1:
			var k Key
			k, err = decodeKeyField("key", f)
			m.Keys = append(m.Keys, k)
		case 2:
			m.Transaction, err = decodeTransactionField(f)
		}
		return err
	})
	return m, err
}

// BeginTransactionRequest opens a transaction for an application.
type BeginTransactionRequest struct {
	App string
}

func (m BeginTransactionRequest) Encode() []byte {
	var e encoder
	e.string(1, m.App)
	return e.b
}

func DecodeBeginTransactionRequest(data []byte) (BeginTransactionRequest, error) {
	var m BeginTransactionRequest
	err := eachField("BeginTransactionRequest", data, func(f field) (err error) {
		if f.num == 1 {
			m.App, err = f.asString("app")
		}
		return err
	})
	return m, err
}

// ActiveTransactionsRequest asks for the open transactions of an application; an empty App
// means all applications.
type ActiveTransactionsRequest struct {
	App string
}

func (m ActiveTransactionsRequest) Encode() []byte {
	var e encoder
	e.string(1, m.App)
	return e.b
}

func DecodeActiveTransactionsRequest(data []byte) (ActiveTransactionsRequest, error) {
	var m ActiveTransactionsRequest
	err := eachField("ActiveTransactionsRequest", data, func(f field) (err error) {
		if f.num == 1 {
			m.App, err = f.asString("app")
		}
		return err
	})
	return m, err
}

// ActiveTransactionsResponse lists transactions that have been begun but not committed or
// rolled back.
type ActiveTransactionsResponse struct {
	Transactions []Transaction
}

func (m ActiveTransactionsResponse) Encode() []byte {
	var e encoder
	for _, t := range m.Transactions {
		t := t
		e.message(1, func(e *encoder) { encodeTransaction(e, t) })
	}
	return e.b
}

func DecodeActiveTransactionsResponse(data []byte) (ActiveTransactionsResponse, error) {
	var m ActiveTransactionsResponse
	err := eachField("ActiveTransactionsResponse", data, func(f field) (err error) {
		if f.num == 1 {
			var t *Transaction
			t, err = decodeTransactionField(f)
			if err == nil {
				m.Transactions = append(m.Transactions, *t)
			}
		}
		return err
	})
	return m, err
}

// QueryRequest selects all entities of one kind. A zero Limit means no limit.
type QueryRequest struct {
	App       string
	Namespace string
	Kind      string
	KeysOnly  bool
	Limit     int32
}

func (m QueryRequest) Encode() []byte {
	var e encoder
	e.string(1, m.App)
	e.string(2, m.Namespace)
	e.string(3, m.Kind)
	e.bool(4, m.KeysOnly)
	e.int64(5, int64(m.Limit))
	return e.b
}

func DecodeQueryRequest(data []byte) (QueryRequest, error) {
	var m QueryRequest
	err := eachField("QueryRequest", data, func(f field) (err error) {
		switch f.num {
		case 1:
			m.App, err = f.asString("app")
		case 2:
			m.Namespace, err = f.asString("namespace")
		case 3:
			m.Kind, err = f.asString("kind")
		case 4:
			m.KeysOnly, err = f.asBool("keys_only")
		case 5:
			var v int64
			v, err = f.asInt64("limit")
			m.Limit = int32(v)
		}
		return err
	})
	return m, err
}

// QueryResponse holds the entities matched by a query. For keys-only queries the entities have no
// properties.
type QueryResponse struct {
	Entities []Entity
}

func (m QueryResponse) Encode() []byte {
	var e encoder
	for _, ent := range m.Entities {
		ent := ent
		e.message(1, func(e *encoder) { encodeEntity(e, ent) })
	}
	return e.b
}

func DecodeQueryResponse(data []byte) (QueryResponse, error) {
	var m QueryResponse
	err := eachField("QueryResponse", data, func(f field) (err error) {
		if f.num == 1 {
			var ent Entity
			ent, err = decodeEntityField("entity", f)
			m.Entities = append(m.Entities, ent)
		}
		return err
	})
	return m, err
}

func encodeKeys(e *encoder, num protowire.Number, keys []Key) {
	for _, k := range keys {
		k := k
		e.message(num, func(e *encoder) { encodeKey(e, k) })
	}
}
