// Package cache defines the key-value cache used in front of the task store
// and the tenant-scoped key layout shared by every implementation.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Cache is a cache-aside store. Entries are only ever deleted on writes,
// never updated in place.
type Cache interface {
	// Get returns the value and true on a hit, nil and false on a miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// DeleteByPattern removes every key matching a glob pattern ("*" wildcard).
	DeleteByPattern(ctx context.Context, pattern string) error
}

const (
	TaskTTL       = 5 * time.Minute
	ListTTL       = time.Minute
	StatisticsTTL = 5 * time.Minute
	CategoriesTTL = 5 * time.Minute
	UpcomingTTL   = time.Minute
)

const prefix = "care"

// Keys composes the keys of one tenant. The tenant is always part of the
// key so one tenant's entries can never satisfy another tenant's read.
type Keys struct {
	tenant string
}

// KeysFor returns the key builder for tenantID.
func KeysFor(tenantID string) Keys {
	return Keys{tenant: tenantID}
}

func (k Keys) Task(id string) string {
	return fmt.Sprintf("%s:%s:task:%s", prefix, k.tenant, id)
}

// List keys a task query by a digest of its full filter/sort/page signature.
func (k Keys) List(query any) string {
	return fmt.Sprintf("%s:%s:tasks:list:%s", prefix, k.tenant, digest(query))
}

func (k Keys) Statistics() string {
	return fmt.Sprintf("%s:%s:tasks:stats", prefix, k.tenant)
}

func (k Keys) Categories() string {
	return fmt.Sprintf("%s:%s:tasks:categories", prefix, k.tenant)
}

func (k Keys) Overdue() string {
	return fmt.Sprintf("%s:%s:tasks:overdue", prefix, k.tenant)
}

// Upcoming keys the upcoming-task view of one assignee ("" for everyone).
func (k Keys) Upcoming(assignee string, days int) string {
	if assignee == "" {
		return fmt.Sprintf("%s:%s:tasks:upcoming:%d", prefix, k.tenant, days)
	}
	return fmt.Sprintf("%s:%s:assignee:%s:upcoming:%d", prefix, k.tenant, assignee, days)
}

// ListPattern matches every list, statistics and category entry of the tenant.
func (k Keys) ListPattern() string {
	return fmt.Sprintf("%s:%s:tasks:*", prefix, k.tenant)
}

// AssigneePattern matches every entry scoped to one assignee.
func (k Keys) AssigneePattern(assignee string) string {
	return fmt.Sprintf("%s:%s:assignee:%s:*", prefix, k.tenant, assignee)
}

func digest(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		raw = []byte(fmt.Sprintf("%#v", v))
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:16])
}
