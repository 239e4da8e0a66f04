package localapi

import (
	"sync"

	"golang.org/x/exp/maps"

	"github.com/backendtester/harness/apiproxy"
	"github.com/backendtester/harness/framework/helpers"
)

// CallCounters counts the calls a Proxy received, per service and method.
type CallCounters struct {
	counts map[string]int
	lock   sync.Mutex
}

func newCallCounters() *CallCounters {
	return &CallCounters{counts: make(map[string]int)}
}

func (c *CallCounters) increment(service, method string) {
	c.lock.Lock()
	c.counts[apiproxy.CallKey(service, method)]++
	c.lock.Unlock()
}

// Count returns how many times service.method was called.
func (c *CallCounters) Count(service, method string) int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.counts[apiproxy.CallKey(service, method)]
}

// Total returns the number of calls to all methods.
func (c *CallCounters) Total() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	total := 0
	for _, n := range c.counts {
		total += n
	}
	return total
}

// Keys returns the "service.method" keys that were called at least once, sorted.
func (c *CallCounters) Keys() []string {
	c.lock.Lock()
	defer c.lock.Unlock()
	return helpers.Sorted(maps.Keys(c.counts))
}

// Reset sets every count back to zero.
func (c *CallCounters) Reset() {
	c.lock.Lock()
	c.counts = make(map[string]int)
	c.lock.Unlock()
}
