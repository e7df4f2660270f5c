package permission

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/HMasataka/streamhub/pkg/domain"
)

// Checker decides whether a client may establish a stream of a data type.
// It is an extension point: the default accepts every client and is not a
// security boundary.
type Checker interface {
	ValidateClient(ctx context.Context, clientID domain.ClientID, dataType domain.DataType) error
}

// CheckerFunc adapts a function to Checker
type CheckerFunc func(ctx context.Context, clientID domain.ClientID, dataType domain.DataType) error

// ValidateClient implements Checker
func (f CheckerFunc) ValidateClient(ctx context.Context, clientID domain.ClientID, dataType domain.DataType) error {
	return f(ctx, clientID, dataType)
}

// AllowAll accepts every client
type AllowAll struct{}

// ValidateClient implements Checker
func (AllowAll) ValidateClient(context.Context, domain.ClientID, domain.DataType) error {
	return nil
}

// CachedChecker memoizes the decisions of another checker, both grants and
// denials, for a fixed TTL.
type CachedChecker struct {
	next  Checker
	cache *ttlcache.Cache[string, error]
}

// NewCachedChecker wraps next. Call Start to run expiry in the background
// and Stop to release it.
func NewCachedChecker(next Checker, ttl time.Duration) *CachedChecker {
	cache := ttlcache.New[string, error](
		ttlcache.WithTTL[string, error](ttl),
		// decisions must expire even when hit constantly
		ttlcache.WithDisableTouchOnHit[string, error](),
	)
	return &CachedChecker{next: next, cache: cache}
}

// ValidateClient implements Checker
func (c *CachedChecker) ValidateClient(ctx context.Context, clientID domain.ClientID, dataType domain.DataType) error {
	key := string(clientID) + "|" + string(dataType)
	if item := c.cache.Get(key); item != nil {
		return item.Value()
	}

	err := c.next.ValidateClient(ctx, clientID, dataType)
	if ctx.Err() != nil {
		// a cancelled lookup is not a decision
		return err
	}
	c.cache.Set(key, err, ttlcache.DefaultTTL)
	return err
}

// Start runs cache expiry until Stop is called
func (c *CachedChecker) Start() {
	go c.cache.Start()
}

// Stop stops cache expiry
func (c *CachedChecker) Stop() {
	c.cache.Stop()
}

// Len returns the number of cached decisions
func (c *CachedChecker) Len() int {
	return c.cache.Len()
}
