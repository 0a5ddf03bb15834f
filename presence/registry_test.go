package presence

import (
	"context"
	"pet-chat/contract"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// registries runs every scenario against both backends.
func registries(t *testing.T) map[string]func(t *testing.T) contract.IPresenceRegistry {
	return map[string]func(t *testing.T) contract.IPresenceRegistry{
		"memory": func(t *testing.T) contract.IPresenceRegistry {
			return NewMemoryRegistry()
		},
		"redis": func(t *testing.T) contract.IPresenceRegistry {
			server := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: server.Addr()})
			t.Cleanup(func() { _ = client.Close() })
			return NewRedisRegistry(client, "petchat-test", time.Minute)
		},
	}
}

func TestRegistry_Join_Then_Leave(t *testing.T) {
	for name, build := range registries(t) {
		t.Run(name, func(t *testing.T) {
			req := require.New(t)
			ctx := context.Background()
			registry := build(t)

			// Given U joined on C1
			req.NoError(registry.Join(ctx, "U", "C1"))
			online, err := registry.IsOnline(ctx, "U")
			req.NoError(err)
			req.True(online)

			// When C1 leaves
			userID, freed, err := registry.Leave(ctx, "C1")
			req.NoError(err)

			// Then U is freed and offline
			req.True(freed)
			req.Equal("U", userID)
			online, err = registry.IsOnline(ctx, "U")
			req.NoError(err)
			req.False(online)
		})
	}
}

func TestRegistry_Stale_Leave_Is_A_No_Op(t *testing.T) {
	for name, build := range registries(t) {
		t.Run(name, func(t *testing.T) {
			req := require.New(t)
			ctx := context.Background()
			registry := build(t)
			req.NoError(registry.Join(ctx, "U", "C1"))

			userID, freed, err := registry.Leave(ctx, "C2")
			req.NoError(err)
			req.False(freed)
			req.Empty(userID)

			online, err := registry.IsOnline(ctx, "U")
			req.NoError(err)
			req.True(online)
		})
	}
}

func TestRegistry_Rejoin_Orphans_The_Previous_Connection(t *testing.T) {
	for name, build := range registries(t) {
		t.Run(name, func(t *testing.T) {
			req := require.New(t)
			ctx := context.Background()
			registry := build(t)

			// Given U opened a second tab
			req.NoError(registry.Join(ctx, "U", "C1"))
			req.NoError(registry.Join(ctx, "U", "C2"))

			// When the first tab closes, nobody is freed
			_, freed, err := registry.Leave(ctx, "C1")
			req.NoError(err)
			req.False(freed)
			online, err := registry.IsOnline(ctx, "U")
			req.NoError(err)
			req.True(online)

			// When the second tab closes, U goes offline
			userID, freed, err := registry.Leave(ctx, "C2")
			req.NoError(err)
			req.True(freed)
			req.Equal("U", userID)
		})
	}
}

func TestRegistry_Connection_Rejoining_As_Another_User(t *testing.T) {
	for name, build := range registries(t) {
		t.Run(name, func(t *testing.T) {
			req := require.New(t)
			ctx := context.Background()
			registry := build(t)

			req.NoError(registry.Join(ctx, "U1", "C1"))
			req.NoError(registry.Join(ctx, "U2", "C1"))

			online, err := registry.IsOnline(ctx, "U1")
			req.NoError(err)
			req.False(online)

			userID, freed, err := registry.Leave(ctx, "C1")
			req.NoError(err)
			req.True(freed)
			req.Equal("U2", userID)
		})
	}
}

func TestRegistry_Refresh_Keeps_The_Mapping(t *testing.T) {
	for name, build := range registries(t) {
		t.Run(name, func(t *testing.T) {
			req := require.New(t)
			ctx := context.Background()
			registry := build(t)
			req.NoError(registry.Join(ctx, "U", "C1"))

			req.NoError(registry.Refresh(ctx, "C1"))
			req.NoError(registry.Refresh(ctx, "unknown"))

			online, err := registry.IsOnline(ctx, "U")
			req.NoError(err)
			req.True(online)
			userID, freed, err := registry.Leave(ctx, "C1")
			req.NoError(err)
			req.True(freed)
			req.Equal("U", userID)
		})
	}
}

func newRedis(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return server, client
}

func TestRedisRegistry_Crashed_Gateway_Leaves_Users_Offline(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	server, client := newRedis(t)

	// Given U joined through a gateway that dies without disconnecting
	crashed := NewRedisRegistry(client, "petchat-test", time.Minute)
	req.NoError(crashed.Join(ctx, "U", "C1"))

	// When a new gateway starts after the ttl has elapsed
	server.FastForward(time.Minute + time.Second)
	restarted := NewRedisRegistry(client, "petchat-test", time.Minute)

	// Then U is offline and the dead connection frees nobody
	online, err := restarted.IsOnline(ctx, "U")
	req.NoError(err)
	req.False(online)
	_, freed, err := restarted.Leave(ctx, "C1")
	req.NoError(err)
	req.False(freed)
}

func TestRedisRegistry_Refresh_Pushes_Back_Expiry(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	server, client := newRedis(t)
	registry := NewRedisRegistry(client, "petchat-test", time.Minute)
	req.NoError(registry.Join(ctx, "U", "C1"))

	// When the connection keeps answering pings
	for i := 0; i < 3; i++ {
		server.FastForward(40 * time.Second)
		req.NoError(registry.Refresh(ctx, "C1"))
	}

	// Then U outlives the ttl
	online, err := registry.IsOnline(ctx, "U")
	req.NoError(err)
	req.True(online)

	// When the pings stop
	server.FastForward(time.Minute + time.Second)

	online, err = registry.IsOnline(ctx, "U")
	req.NoError(err)
	req.False(online)
}

func TestRedisRegistry_Orphaned_Connection_Does_Not_Refresh_The_User(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	server, client := newRedis(t)
	registry := NewRedisRegistry(client, "petchat-test", time.Minute)

	// Given U moved from C1 to C2
	req.NoError(registry.Join(ctx, "U", "C1"))
	req.NoError(registry.Join(ctx, "U", "C2"))

	// When only the orphaned C1 keeps refreshing
	for i := 0; i < 2; i++ {
		server.FastForward(40 * time.Second)
		req.NoError(registry.Refresh(ctx, "C1"))
	}

	// Then C2's entry expires on schedule
	online, err := registry.IsOnline(ctx, "U")
	req.NoError(err)
	req.False(online)
}
