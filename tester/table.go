package tester

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/backendtester/harness/apiproxy"
	"github.com/backendtester/harness/framework/helpers"
	"github.com/backendtester/harness/wire"
)

// Policy says what the Dispatcher does with a call.
type Policy int

const (
	// Passthrough forwards the call and returns the outcome unchanged.
	Passthrough Policy = iota

	// Virtualize answers the call from a handler without forwarding it. Without a handler the
	// call is passed through.
	Virtualize

	// Swallow records the call in the Ledger and answers it with an empty success.
	Swallow

	// Observe forwards the call and, if it succeeds, records its side effect in the Ledger.
	Observe
)

var policyNames = map[Policy]string{ //nolint:gochecknoglobals
	Passthrough: "passthrough",
	Virtualize:  "virtualize",
	Swallow:     "swallow",
	Observe:     "observe",
}

func (p Policy) String() string {
	if name, ok := policyNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

// ParsePolicy is the inverse of Policy.String.
func ParsePolicy(name string) (Policy, error) {
	for p, n := range policyNames {
		if strings.EqualFold(n, name) {
			return p, nil
		}
	}
	return Passthrough, fmt.Errorf("unknown policy %q", name)
}

func (p *Policy) UnmarshalYAML(value *yaml.Node) error {
	var name string
	if err := value.Decode(&name); err != nil {
		return err
	}
	parsed, err := ParsePolicy(name)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

func (p Policy) MarshalYAML() (interface{}, error) {
	return p.String(), nil
}

// Rule assigns a Policy to one method of a service or, with Prefix set, to every method whose
// name starts with Method.
type Rule struct {
	Service string `yaml:"service"`
	Method  string `yaml:"method"`
	Prefix  bool   `yaml:"prefix,omitempty"`
	Policy  Policy `yaml:"policy"`
}

func (r Rule) String() string {
	return fmt.Sprintf("%s.%s%s => %s", r.Service, r.Method, helpers.IfElse(r.Prefix, "*", ""), r.Policy)
}

// The policies each service can support depend on what the Dispatcher knows how to decode.
var supportedPolicies = map[string][]Policy{ //nolint:gochecknoglobals
	wire.DatastoreService: {Observe},
	wire.MailService:      {Observe},
	wire.TaskQueueService: {Swallow, Observe},
	wire.URLFetchService:  {Virtualize},
}

func (r Rule) validate() error {
	if r.Service == "" || r.Method == "" {
		return fmt.Errorf("rule %s: service and method are required", r)
	}
	if r.Policy == Passthrough {
		return nil
	}
	for _, p := range supportedPolicies[r.Service] {
		if p == r.Policy {
			return nil
		}
	}
	return fmt.Errorf("rule %s: policy %s is not supported for service %q", r, r.Policy, r.Service)
}

// Table maps calls to policies.
//
// An exact rule for a method always wins. Otherwise the prefix rule with the longest matching
// prefix applies, so two methods that share a prefix are both covered by it. A call that no rule
// matches is passed through.
type Table struct {
	exact    map[string]Rule
	prefixes []Rule
}

// NewTable creates a Table. Two rules for the same service, method and kind of match are an
// error.
func NewTable(rules ...Rule) (*Table, error) {
	t := &Table{exact: make(map[string]Rule)}
	for _, r := range rules {
		if err := r.validate(); err != nil {
			return nil, err
		}
		if r.Prefix {
			for _, existing := range t.prefixes {
				if existing.Service == r.Service && existing.Method == r.Method {
					return nil, fmt.Errorf("duplicate rule %s", r)
				}
			}
			t.prefixes = append(t.prefixes, r)
			continue
		}
		key := apiproxy.CallKey(r.Service, r.Method)
		if _, exists := t.exact[key]; exists {
			return nil, fmt.Errorf("duplicate rule %s", r)
		}
		t.exact[key] = r
	}
	sort.SliceStable(t.prefixes, func(i, j int) bool {
		return len(t.prefixes[i].Method) > len(t.prefixes[j].Method)
	})
	return t, nil
}

// DefaultTable returns the standard classification:
//
//	urlfetch.Fetch       virtualize
//	taskqueue.Add*       swallow
//	datastore_v3.Put     observe
//	mail.Send*           observe (Send and SendToAdmins)
func DefaultTable() *Table {
	t, err := NewTable(DefaultRules()...)
	if err != nil {
		panic(err)
	}
	return t
}

// DefaultRules returns the rules of DefaultTable, for callers that want to extend them.
func DefaultRules() []Rule {
	return []Rule{
		{Service: wire.URLFetchService, Method: wire.MethodFetch, Policy: Virtualize},
		{Service: wire.TaskQueueService, Method: wire.MethodAdd, Prefix: true, Policy: Swallow},
		{Service: wire.DatastoreService, Method: wire.MethodPut, Policy: Observe},
		{Service: wire.MailService, Method: wire.MethodSend, Prefix: true, Policy: Observe},
	}
}

type tableDocument struct {
	Rules []Rule `yaml:"rules"`
}

// LoadTable parses a table from YAML or JSON of the form
//
//	rules:
//	  - {service: mail, method: Send, prefix: true, policy: observe}
func LoadTable(data []byte) (*Table, error) {
	var doc tableDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid classification table: %w", err)
	}
	return NewTable(doc.Rules...)
}

// Lookup returns the policy for a call.
func (t *Table) Lookup(service, method string) Policy {
	if r, ok := t.exact[apiproxy.CallKey(service, method)]; ok {
		return r.Policy
	}
	for _, r := range t.prefixes {
		if r.Service == service && strings.HasPrefix(method, r.Method) {
			return r.Policy
		}
	}
	return Passthrough
}

// Rules returns the rules of the table, exact rules first, each group in a stable order.
func (t *Table) Rules() []Rule {
	ret := make([]Rule, 0, len(t.exact)+len(t.prefixes))
	for _, r := range t.exact {
		ret = append(ret, r)
	}
	sort.Slice(ret, func(i, j int) bool {
		return apiproxy.CallKey(ret[i].Service, ret[i].Method) < apiproxy.CallKey(ret[j].Service, ret[j].Method)
	})
	return append(ret, t.prefixes...)
}
