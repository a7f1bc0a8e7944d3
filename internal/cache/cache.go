// Package cache keeps recently computed responses so identical turns skip
// the model call entirely. It gates the pipeline from outside; the pipeline
// itself never consults it.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"faultline/internal/schema"
)

// ResponseCache is an LRU of canonical responses keyed by a digest of the
// turn's inputs. Concurrent identical turns collapse into one computation.
type ResponseCache struct {
	lru   *lru.Cache[string, *schema.CanonicalResponse]
	group singleflight.Group
}

func New(size int) (*ResponseCache, error) {
	if size <= 0 {
		size = 1024
	}
	l, err := lru.New[string, *schema.CanonicalResponse](size)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	return &ResponseCache{lru: l}, nil
}

// Key digests the inputs that determine a turn's answer. The JSON is put in
// canonical form first so field order never splits the cache.
func Key(endpoint, conversationID, inputText string) string {
	payload, _ := json.Marshal(map[string]string{
		"endpoint":        endpoint,
		"conversation_id": conversationID,
		"input":           inputText,
	})
	if canonical, err := jcs.Transform(payload); err == nil {
		payload = canonical
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Do returns the cached response for key, or runs compute once (collapsing
// concurrent callers) and caches its result. cached reports a hit.
func (c *ResponseCache) Do(key string, compute func() (*schema.CanonicalResponse, error)) (resp *schema.CanonicalResponse, cached bool, err error) {
	if hit, ok := c.lru.Get(key); ok {
		return hit, true, nil
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		if hit, ok := c.lru.Get(key); ok {
			return hit, nil
		}
		out, err := compute()
		if err != nil {
			return nil, err
		}
		c.lru.Add(key, out)
		return out, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*schema.CanonicalResponse), false, nil
}

// Invalidate drops one key, used when a conversation gains new evidence.
func (c *ResponseCache) Invalidate(key string) {
	c.lru.Remove(key)
}
