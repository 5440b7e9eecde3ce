package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const keyReportSubmitLock = "fieldops:lock:report_submit:%s:%s:%s"

// Deletes the key only while it still holds the caller's token.
var releaseItemScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

var errItemLockUnavailable = errors.New("item lock not configured")

// itemLock claims one work order line item for a single in-flight
// submission. Claims expire after ttl so a crashed instance cannot wedge
// the item.
type itemLock struct {
	client *redis.Client
	ttl    time.Duration
}

func newItemLock(client *redis.Client, ttl time.Duration) *itemLock {
	if client == nil {
		return nil
	}
	return &itemLock{client: client, ttl: ttl}
}

func (l *itemLock) claim(ctx context.Context, orgID, workOrderNumber, lineItemID string) (string, bool, error) {
	if l == nil || l.client == nil {
		return "", false, errItemLockUnavailable
	}
	if l.ttl <= 0 {
		return "", false, errors.New("item lock ttl must be positive")
	}
	key := itemLockKey(orgID, workOrderNumber, lineItemID)
	if strings.TrimSpace(lineItemID) == "" {
		return "", false, fmt.Errorf("item lock %q: empty line item", key)
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

// release is a no-op for an empty token, which is what a refused claim returns.
func (l *itemLock) release(ctx context.Context, orgID, workOrderNumber, lineItemID, token string) error {
	if l == nil || l.client == nil || token == "" {
		return nil
	}
	key := itemLockKey(orgID, workOrderNumber, lineItemID)
	return releaseItemScript.Run(ctx, l.client, []string{key}, token).Err()
}

func itemLockKey(orgID, workOrderNumber, lineItemID string) string {
	return fmt.Sprintf(keyReportSubmitLock,
		strings.TrimSpace(orgID),
		strings.TrimSpace(workOrderNumber),
		strings.TrimSpace(lineItemID),
	)
}
