package tester

import (
	"context"
	"sync"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"

	"github.com/backendtester/harness/apiproxy"
	"github.com/backendtester/harness/wire"
)

// Dispatcher is the apiproxy.Delegate that a Tester installs. It applies a Table to each call,
// records side effects in a Ledger, and hands everything it does not answer itself to the next
// delegate.
//
// Synchronous and asynchronous calls are classified the same way. An asynchronous call that is
// forwarded is waited for before its side effect is recorded, so the returned Future is always
// already resolved.
type Dispatcher struct {
	next         apiproxy.Delegate
	table        *Table
	ledger       *Ledger
	fetchHandler FetchHandler
	loggers      ldlog.Loggers
	lock         sync.Mutex
}

// NewDispatcher creates a Dispatcher in front of next. A nil table means DefaultTable().
func NewDispatcher(next apiproxy.Delegate, table *Table, ledger *Ledger, loggers ldlog.Loggers) *Dispatcher {
	if table == nil {
		table = DefaultTable()
	}
	if ledger == nil {
		ledger = NewLedger()
	}
	return &Dispatcher{next: next, table: table, ledger: ledger, loggers: loggers}
}

// Next returns the delegate that calls are forwarded to.
func (d *Dispatcher) Next() apiproxy.Delegate {
	return d.next
}

func (d *Dispatcher) Ledger() *Ledger {
	return d.ledger
}

// SetFetchHandler installs the handler for virtualized fetches; nil removes it.
func (d *Dispatcher) SetFetchHandler(h FetchHandler) {
	d.lock.Lock()
	d.fetchHandler = h
	d.lock.Unlock()
}

func (d *Dispatcher) currentFetchHandler() FetchHandler {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.fetchHandler
}

func (d *Dispatcher) MakeSyncCall(
	ctx context.Context,
	env apiproxy.Environment,
	service, method string,
	request []byte,
) ([]byte, error) {
	policy := d.classify(service, method)
	if response, handled, err := d.answer(service, method, policy, request); handled {
		return response, err
	}
	response, err := d.next.MakeSyncCall(ctx, env, service, method, request)
	if err != nil {
		return nil, err
	}
	if policy == Observe {
		if err := d.observe(service, method, request, response); err != nil {
			return nil, err
		}
	}
	return response, nil
}

func (d *Dispatcher) MakeAsyncCall(
	ctx context.Context,
	env apiproxy.Environment,
	service, method string,
	request []byte,
	config apiproxy.APIConfig,
) *apiproxy.Future {
	policy := d.classify(service, method)
	if response, handled, err := d.answer(service, method, policy, request); handled {
		if err != nil {
			return apiproxy.Failed(err)
		}
		return apiproxy.Resolved(response)
	}
	result := d.next.MakeAsyncCall(ctx, env, service, method, request, config).Wait()
	if result.Err != nil {
		return apiproxy.Failed(apiproxy.Cause(result.Err))
	}
	if policy == Observe {
		if err := d.observe(service, method, request, result.Payload); err != nil {
			return apiproxy.Failed(err)
		}
	}
	return apiproxy.Resolved(result.Payload)
}

// Log forwards the record unchanged.
func (d *Dispatcher) Log(ctx context.Context, env apiproxy.Environment, record apiproxy.LogRecord) {
	d.next.Log(ctx, env, record)
}

func (d *Dispatcher) classify(service, method string) Policy {
	policy := d.table.Lookup(service, method)
	if policy == Virtualize && d.currentFetchHandler() == nil {
		policy = Passthrough
	}
	d.loggers.Debugf("%s.%s: %s", service, method, policy)
	return policy
}

// answer handles the policies that never reach the next delegate. The boolean result is false
// if the call must be forwarded.
func (d *Dispatcher) answer(service, method string, policy Policy, request []byte) ([]byte, bool, error) {
	switch policy {
	case Virtualize:
		response, err := d.virtualizeFetch(service, method, request)
		return response, true, err
	case Swallow:
		task, err := wire.DecodeTaskAddRequest(request)
		if err != nil {
			return nil, true, &DispatchError{Service: service, Method: method, Step: "wire.DecodeTaskAddRequest", Err: err}
		}
		d.ledger.RecordTask(task)
		return wire.TaskAddResponse{}.Encode(), true, nil
	default:
		return nil, false, nil
	}
}

func (d *Dispatcher) virtualizeFetch(service, method string, request []byte) ([]byte, error) {
	handler := d.currentFetchHandler()
	req, err := wire.DecodeFetchRequest(request)
	if err != nil {
		return nil, &DispatchError{Service: service, Method: method, Step: "wire.DecodeFetchRequest", Err: err}
	}
	content, err := handler.Content(&req)
	if err != nil {
		return nil, &DispatchError{Service: service, Method: method, Step: "FetchHandler.Content", Err: err}
	}
	return wire.EncodeFetchResponse(content, handler.StatusCode(&req)), nil
}

func (d *Dispatcher) observe(service, method string, request, response []byte) error {
	switch service {
	case wire.DatastoreService:
		keys, err := wire.ExtractCreatedKeys(response)
		if err != nil {
			return &DispatchError{Service: service, Method: method, Step: "wire.ExtractCreatedKeys", Err: err}
		}
		d.ledger.RecordKeys(keys...)
	case wire.MailService:
		msg, err := wire.DecodeMailMessage(request)
		if err != nil {
			return &DispatchError{Service: service, Method: method, Step: "wire.DecodeMailMessage", Err: err}
		}
		d.ledger.RecordMessage(msg)
	case wire.TaskQueueService:
		task, err := wire.DecodeTaskAddRequest(request)
		if err != nil {
			return &DispatchError{Service: service, Method: method, Step: "wire.DecodeTaskAddRequest", Err: err}
		}
		d.ledger.RecordTask(task)
	}
	return nil
}
