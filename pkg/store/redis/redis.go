package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/rmax-ai/termgraph/pkg/store"
)

const (
	keyPrefix  = "termgraph:"
	DefaultTTL = 10 * time.Minute

	// DefaultLoadTimeout bounds a shared load against the inner store.
	DefaultLoadTimeout = 30 * time.Second
)

// cacheOps lists every key family written by CachedStore.
var cacheOps = []string{"term", "terms", "roots", "neighbors", "closure", "childcount"}

// TermgraphCacheRequests counts cache lookups by operation and result
var TermgraphCacheRequests = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "termgraph_cache_requests_total",
		Help: "Total number of redis cache lookups",
	},
	[]string{"operation", "result"},
)

func init() {
	prometheus.MustRegister(TermgraphCacheRequests)
}

// CachedStore is a read-through redis cache in front of a GraphStore.
// Redis faults degrade to the inner store and are only logged. Absent terms
// are cached too, so repeated misses do not reach the inner store.
type CachedStore struct {
	client *redis.Client
	inner  store.GraphStore
	ttl    time.Duration
	logger *slog.Logger
	flight singleflight.Group

	loadTimeout time.Duration
}

// Option configures a CachedStore.
type Option func(*CachedStore)

// WithTTL sets the expiry of cached entries.
func WithTTL(ttl time.Duration) Option {
	return func(c *CachedStore) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithLoadTimeout bounds how long a shared load may run against the inner store.
func WithLoadTimeout(d time.Duration) Option {
	return func(c *CachedStore) {
		if d > 0 {
			c.loadTimeout = d
		}
	}
}

// WithLogger sets the logger for redis faults.
func WithLogger(l *slog.Logger) Option {
	return func(c *CachedStore) {
		if l != nil {
			c.logger = l
		}
	}
}

func NewCachedStore(client *redis.Client, inner store.GraphStore, opts ...Option) *CachedStore {
	c := &CachedStore{
		client: client,
		inner:  inner,
		ttl:    DefaultTTL,
		logger: slog.Default(),

		loadTimeout: DefaultLoadTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func makeKey(op, ontology string, parts ...string) string {
	return keyPrefix + op + ":" + ontology + ":" + strings.Join(parts, "\x1f")
}

// cached serves key from redis, falling back to load on a miss and storing
// the loaded value. Concurrent misses on the same key share one load, which
// runs detached from any single caller so that one abandoned request does not
// fail the others. Every caller decodes its own copy of the shared result.
func cached[T any](ctx context.Context, c *CachedStore, op, key string, load func(context.Context) (T, error)) (T, error) {
	var zero T
	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var v T
		if err := json.Unmarshal(data, &v); err == nil {
			TermgraphCacheRequests.WithLabelValues(op, "hit").Inc()
			return v, nil
		}
		c.logger.Warn("cache_decode_failed", "key", key, "error", err)
	case errors.Is(err, redis.Nil):
	default:
		TermgraphCacheRequests.WithLabelValues(op, "error").Inc()
		c.logger.Warn("cache_get_failed", "key", key, "error", err)
	}
	TermgraphCacheRequests.WithLabelValues(op, "miss").Inc()

	ch := c.flight.DoChan(key, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout)
		defer cancel()

		v, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s result: %w", op, err)
		}
		c.store(loadCtx, key, data)
		return data, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		var v T
		if err := json.Unmarshal(res.Val.([]byte), &v); err != nil {
			return zero, fmt.Errorf("failed to decode %s result: %w", op, err)
		}
		return v, nil
	}
}

func (c *CachedStore) store(ctx context.Context, key string, data []byte) {
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("cache_set_failed", "key", key, "error", err)
	}
}

func (c *CachedStore) TermByIRI(ctx context.Context, ontology, iri string) (*store.Term, error) {
	return cached(ctx, c, "term", makeKey("term", ontology, "iri", iri), func(ctx context.Context) (*store.Term, error) {
		return c.inner.TermByIRI(ctx, ontology, iri)
	})
}

func (c *CachedStore) TermByShortForm(ctx context.Context, ontology, shortForm string) (*store.Term, error) {
	return cached(ctx, c, "term", makeKey("term", ontology, "sf", shortForm), func(ctx context.Context) (*store.Term, error) {
		return c.inner.TermByShortForm(ctx, ontology, shortForm)
	})
}

func (c *CachedStore) TermByOboID(ctx context.Context, ontology, oboID string) (*store.Term, error) {
	return cached(ctx, c, "term", makeKey("term", ontology, "obo", oboID), func(ctx context.Context) (*store.Term, error) {
		return c.inner.TermByOboID(ctx, ontology, oboID)
	})
}

func (c *CachedStore) Terms(ctx context.Context, ontology string) ([]store.Term, error) {
	return cached(ctx, c, "terms", makeKey("terms", ontology), func(ctx context.Context) ([]store.Term, error) {
		return c.inner.Terms(ctx, ontology)
	})
}

func (c *CachedStore) Roots(ctx context.Context, ontology string) ([]store.Term, error) {
	return cached(ctx, c, "roots", makeKey("roots", ontology), func(ctx context.Context) ([]store.Term, error) {
		return c.inner.Roots(ctx, ontology)
	})
}

func (c *CachedStore) Neighbors(ctx context.Context, ontology, iri, relation string, dir store.Direction) ([]store.Term, error) {
	key := makeKey("neighbors", ontology, dir.String(), relation, iri)
	return cached(ctx, c, "neighbors", key, func(ctx context.Context) ([]store.Term, error) {
		return c.inner.Neighbors(ctx, ontology, iri, relation, dir)
	})
}

// Closure caches closures of stores that compute them natively and reports
// ErrClosureUnsupported otherwise, so callers walk the cached Neighbors.
func (c *CachedStore) Closure(ctx context.Context, ontology, iri, relation string, dir store.Direction) ([]store.Term, error) {
	cq, ok := c.inner.(store.ClosureQuerier)
	if !ok {
		return nil, store.ErrClosureUnsupported
	}
	key := makeKey("closure", ontology, dir.String(), relation, iri)
	return cached(ctx, c, "closure", key, func(ctx context.Context) ([]store.Term, error) {
		return cq.Closure(ctx, ontology, iri, relation, dir)
	})
}

// ChildCounts reads every count in one MGET and loads only the missing ones.
func (c *CachedStore) ChildCounts(ctx context.Context, ontology string, iris []string) (map[string]int, error) {
	counts := make(map[string]int, len(iris))
	if len(iris) == 0 {
		return counts, nil
	}

	keys := make([]string, len(iris))
	for i, iri := range iris {
		keys[i] = makeKey("childcount", ontology, iri)
	}

	missing := iris
	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		TermgraphCacheRequests.WithLabelValues("child_counts", "error").Inc()
		c.logger.Warn("cache_mget_failed", "ontology", ontology, "error", err)
	} else {
		missing = nil
		for i, val := range values {
			str, ok := val.(string)
			if !ok {
				missing = append(missing, iris[i])
				continue
			}
			n, err := strconv.Atoi(str)
			if err != nil {
				missing = append(missing, iris[i])
				continue
			}
			counts[iris[i]] = n
		}
	}
	TermgraphCacheRequests.WithLabelValues("child_counts", "hit").Add(float64(len(iris) - len(missing)))
	TermgraphCacheRequests.WithLabelValues("child_counts", "miss").Add(float64(len(missing)))
	if len(missing) == 0 {
		return counts, nil
	}

	loaded, err := c.inner.ChildCounts(ctx, ontology, missing)
	if err != nil {
		return nil, err
	}
	pipe := c.client.Pipeline()
	for _, iri := range missing {
		n := loaded[iri]
		counts[iri] = n
		pipe.Set(ctx, makeKey("childcount", ontology, iri), n, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("cache_pipeline_failed", "ontology", ontology, "error", fmt.Errorf("failed to store child counts: %w", err))
	}
	return counts, nil
}

// Invalidate drops every cached entry of an ontology.
func (c *CachedStore) Invalidate(ctx context.Context, ontology string) error {
	onto := escapeGlob(ontology)
	for _, op := range cacheOps {
		if err := c.deleteMatching(ctx, keyPrefix+op+":"+onto+":*"); err != nil {
			return err
		}
	}
	return nil
}

func (c *CachedStore) deleteMatching(ctx context.Context, pattern string) error {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 256).Result()
		if err != nil {
			return fmt.Errorf("failed to scan cache keys: %w", err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to delete cache keys: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// escapeGlob quotes the redis MATCH metacharacters in s.
func escapeGlob(s string) string {
	return globEscaper.Replace(s)
}
