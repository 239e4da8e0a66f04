package tester

import (
	"sync"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/backendtester/harness/framework/helpers"
	"github.com/backendtester/harness/wire"
)

// Ledger records the side effects of one test: datastore keys that were written, mail that was
// sent, and tasks that were enqueued. Accessors return copies.
type Ledger struct {
	keys     map[string]wire.Key
	messages []wire.MailMessage
	tasks    []wire.TaskAddRequest
	lock     sync.Mutex
}

func NewLedger() *Ledger {
	return &Ledger{keys: make(map[string]wire.Key)}
}

// RecordKeys adds keys to the set of created keys. A key that is already present is not added
// twice.
func (l *Ledger) RecordKeys(keys ...wire.Key) {
	l.lock.Lock()
	defer l.lock.Unlock()
	for _, k := range keys {
		l.keys[k.String()] = k
	}
}

func (l *Ledger) RecordMessage(m wire.MailMessage) {
	l.lock.Lock()
	l.messages = append(l.messages, m)
	l.lock.Unlock()
}

func (l *Ledger) RecordTask(task wire.TaskAddRequest) {
	l.lock.Lock()
	l.tasks = append(l.tasks, task)
	l.lock.Unlock()
}

// CreatedKeys returns the created keys ordered by their string form.
func (l *Ledger) CreatedKeys() []wire.Key {
	l.lock.Lock()
	defer l.lock.Unlock()
	names := helpers.Sorted(maps.Keys(l.keys))
	ret := make([]wire.Key, 0, len(names))
	for _, n := range names {
		ret = append(ret, l.keys[n])
	}
	return ret
}

// MailMessages returns sent mail in the order the sends completed.
func (l *Ledger) MailMessages() []wire.MailMessage {
	l.lock.Lock()
	defer l.lock.Unlock()
	return slices.Clone(l.messages)
}

// Tasks returns swallowed or observed tasks in the order they were added.
func (l *Ledger) Tasks() []wire.TaskAddRequest {
	l.lock.Lock()
	defer l.lock.Unlock()
	return slices.Clone(l.tasks)
}

func (l *Ledger) clearKeys() {
	l.lock.Lock()
	l.keys = make(map[string]wire.Key)
	l.lock.Unlock()
}

func (l *Ledger) clearCaptures() {
	l.lock.Lock()
	l.messages = nil
	l.tasks = nil
	l.lock.Unlock()
}
