package localdatastore

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	consul "github.com/hashicorp/consul/api"

	"github.com/backendtester/harness/wire"
)

// Entities live under "<prefix>/entities/<app>/<namespace>/<kind>/<key>", with each segment
// escaped; ID counters live under "<prefix>/ids/<app>" and are advanced with check-and-set.
type consulStorage struct {
	kv     *consul.KV
	prefix string
}

// NewConsulStorage connects to a Consul agent and checks that its KV store answers.
func NewConsulStorage(ctx context.Context, opts ConsulOptions) (Storage, error) {
	config := consul.DefaultConfig()
	if opts.Address != "" {
		config.Address = opts.Address
	}
	client, err := consul.NewClient(config)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimSuffix(opts.Prefix, "/")
	if prefix == "" {
		prefix = defaultPrefix
	}
	c := &consulStorage{kv: client.KV(), prefix: prefix}
	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if _, _, err := c.kv.Get(c.prefix+"/ids", c.query(pingCtx)); err != nil {
		return nil, fmt.Errorf("consul at %s is not reachable: %w", config.Address, err)
	}
	return c, nil
}

// segment never returns an empty string, so that empty namespaces do not produce "//".
func segment(s string) string {
	return "_" + url.PathEscape(s)
}

func (c *consulStorage) kindDir(app, namespace, kind string) string {
	return c.prefix + "/entities/" + segment(app) + "/" + segment(namespace) + "/" + segment(kind) + "/"
}

func (c *consulStorage) path(k wire.Key) string {
	return c.kindDir(k.AppID, k.Namespace, k.Kind()) + segment(k.String())
}

func (c *consulStorage) query(ctx context.Context) *consul.QueryOptions {
	return (&consul.QueryOptions{RequireConsistent: true}).WithContext(ctx)
}

func (c *consulStorage) write(ctx context.Context) *consul.WriteOptions {
	return (&consul.WriteOptions{}).WithContext(ctx)
}

func (c *consulStorage) Get(ctx context.Context, key wire.Key) (wire.Entity, bool, error) {
	pair, _, err := c.kv.Get(c.path(key), c.query(ctx))
	if err != nil || pair == nil {
		return wire.Entity{}, false, err
	}
	e, err := wire.DecodeEntity(pair.Value)
	return e, err == nil, err
}

func (c *consulStorage) Put(ctx context.Context, entity wire.Entity) error {
	_, err := c.kv.Put(&consul.KVPair{Key: c.path(entity.Key), Value: wire.EncodeEntity(entity)}, c.write(ctx))
	return err
}

func (c *consulStorage) Delete(ctx context.Context, key wire.Key) error {
	_, err := c.kv.Delete(c.path(key), c.write(ctx))
	return err
}

func (c *consulStorage) List(ctx context.Context, app, namespace, kind string) ([]wire.Entity, error) {
	pairs, _, err := c.kv.List(c.kindDir(app, namespace, kind), c.query(ctx))
	if err != nil {
		return nil, fmt.Errorf("list failed for kind %q: %w", kind, err)
	}
	items := make([][]byte, 0, len(pairs))
	for _, p := range pairs {
		items = append(items, p.Value)
	}
	return decodeAll(items)
}

func (c *consulStorage) AllocateID(ctx context.Context, app string) (int64, error) {
	key := c.prefix + "/ids/" + segment(app)
	for {
		pair, _, err := c.kv.Get(key, c.query(ctx))
		if err != nil {
			return 0, err
		}
		var current int64
		var index uint64
		if pair != nil {
			index = pair.ModifyIndex
			if current, err = strconv.ParseInt(string(pair.Value), 10, 64); err != nil {
				return 0, fmt.Errorf("corrupt ID counter at %s: %w", key, err)
			}
		}
		next := current + 1
		ok, _, err := c.kv.CAS(&consul.KVPair{
			Key:         key,
			Value:       []byte(strconv.FormatInt(next, 10)),
			ModifyIndex: index,
		}, c.write(ctx))
		if err != nil {
			return 0, err
		}
		if ok {
			return next, nil
		}
		if err := ctx.Err(); err != nil {
			return 0, err
		}
	}
}

func (c *consulStorage) Close() error {
	return nil
}
