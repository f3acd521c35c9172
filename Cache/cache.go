package Cache

import (
	"context"
	"fmt"
	"time"
)

const (
	SessionTTL     = time.Hour
	TaskListingTTL = time.Minute
)

// Cache is a best-effort key/value store for JSON documents. A miss is
// reported as (false, nil); errors mean the backend itself failed.
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeletePattern(ctx context.Context, pattern string) error
	Ping(ctx context.Context) error
	Close() error
}

func UserKey(userID string) string {
	return "user:" + userID
}

func CompanyTasksKey(companyID, suffix string) string {
	return fmt.Sprintf("company:%s:tasks:%s", companyID, suffix)
}

// CompanyTasksPattern matches every cached task listing of a company.
func CompanyTasksPattern(companyID string) string {
	return fmt.Sprintf("company:%s:tasks*", companyID)
}

// Noop is used when no Redis is configured. Every read misses.
type Noop struct{}

func (Noop) Get(context.Context, string, interface{}) (bool, error) { return false, nil }
func (Noop) Set(context.Context, string, interface{}, time.Duration) error { return nil }
func (Noop) Delete(context.Context, ...string) error { return nil }
func (Noop) DeletePattern(context.Context, string) error { return nil }
func (Noop) Ping(context.Context) error { return nil }
func (Noop) Close() error { return nil }
