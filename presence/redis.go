package presence

import (
	"context"
	"fmt"
	"pet-chat/contract"
	"pet-chat/errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var _ contract.IPresenceRegistry = (*RedisRegistry)(nil)

// DefaultTTL outlives two websocket ping rounds.
const DefaultTTL = 2 * time.Minute

// Each entry is a pair of keys expiring together, user -> connection and connection -> user.
// A gateway that dies without a clean disconnect stops refreshing them and its users go offline.
// KEYS[1] user key, KEYS[2] connection key.
// ARGV[1] user, ARGV[2] connection, ARGV[3] ttl in ms, ARGV[4] user key prefix, ARGV[5] connection key prefix.
var joinScript = redis.NewScript(`
local previous = redis.call('GET', KEYS[1])
if previous and previous ~= ARGV[2] then
	redis.call('DEL', ARGV[5] .. previous)
end
local previousUser = redis.call('GET', KEYS[2])
if previousUser and previousUser ~= ARGV[1] and redis.call('GET', ARGV[4] .. previousUser) == ARGV[2] then
	redis.call('DEL', ARGV[4] .. previousUser)
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
redis.call('SET', KEYS[2], ARGV[1], 'PX', ARGV[3])
return 1
`)

// KEYS[1] connection key. ARGV[1] connection, ARGV[2] user key prefix.
var leaveScript = redis.NewScript(`
local user = redis.call('GET', KEYS[1])
if not user then
	return false
end
redis.call('DEL', KEYS[1])
if redis.call('GET', ARGV[2] .. user) == ARGV[1] then
	redis.call('DEL', ARGV[2] .. user)
end
return user
`)

// KEYS[1] connection key. ARGV[1] connection, ARGV[2] ttl in ms, ARGV[3] user key prefix.
var refreshScript = redis.NewScript(`
local user = redis.call('GET', KEYS[1])
if not user then
	return 0
end
redis.call('PEXPIRE', KEYS[1], ARGV[2])
if redis.call('GET', ARGV[3] .. user) == ARGV[1] then
	redis.call('PEXPIRE', ARGV[3] .. user, ARGV[2])
end
return 1
`)

// RedisRegistry keeps the same single connection semantics as MemoryRegistry in Redis,
// so presence can be read by other services. Entries expire after ttl unless the
// connection refreshes them, which it does on every pong.
type RedisRegistry struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisRegistry(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisRegistry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisRegistry{client: client, prefix: prefix, ttl: ttl}
}

// The braces are a cluster hash tag: every presence key lives in one slot, as the scripts require.
func (r *RedisRegistry) userPrefix() string { return fmt.Sprintf("{%s}:presence:user:", r.prefix) }
func (r *RedisRegistry) connPrefix() string { return fmt.Sprintf("{%s}:presence:conn:", r.prefix) }

func (r *RedisRegistry) Join(ctx context.Context, userID, connectionID string) error {
	keys := []string{r.userPrefix() + userID, r.connPrefix() + connectionID}
	err := joinScript.Run(ctx, r.client, keys,
		userID, connectionID, r.ttl.Milliseconds(), r.userPrefix(), r.connPrefix()).Err()
	if err != nil {
		return fmt.Errorf("%w: presence join: %v", errors.ErrStoreFailure, err)
	}
	return nil
}

func (r *RedisRegistry) Leave(ctx context.Context, connectionID string) (string, bool, error) {
	keys := []string{r.connPrefix() + connectionID}
	userID, err := leaveScript.Run(ctx, r.client, keys, connectionID, r.userPrefix()).Text()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: presence leave: %v", errors.ErrStoreFailure, err)
	}
	return userID, true, nil
}

// Refresh pushes back the expiry of the entry held by connectionID.
// An unknown or orphaned connection refreshes nothing.
func (r *RedisRegistry) Refresh(ctx context.Context, connectionID string) error {
	keys := []string{r.connPrefix() + connectionID}
	err := refreshScript.Run(ctx, r.client, keys, connectionID, r.ttl.Milliseconds(), r.userPrefix()).Err()
	if err != nil {
		return fmt.Errorf("%w: presence refresh: %v", errors.ErrStoreFailure, err)
	}
	return nil
}

func (r *RedisRegistry) IsOnline(ctx context.Context, userID string) (bool, error) {
	n, err := r.client.Exists(ctx, r.userPrefix()+userID).Result()
	if err != nil {
		return false, fmt.Errorf("%w: presence lookup: %v", errors.ErrStoreFailure, err)
	}
	return n == 1, nil
}
