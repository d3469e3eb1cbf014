package rbac

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRedisNotifierRelaysBetweenProcesses(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	newNode := func() (*RedisNotifier, <-chan Change) {
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		broker := NewBroker()
		n := NewRedisNotifier(client, "", broker, nil)
		go func() { _ = n.Listen(ctx) }()
		return n, broker.Subscribe(ctx)
	}
	a, aLocal := newNode()
	b, bLocal := newNode()
	require.NotEqual(t, a.Origin(), b.Origin())

	require.Eventually(t, func() bool {
		return mr.PubSubNumSub(DefaultNotifyChannel)[DefaultNotifyChannel] == 2
	}, 2*time.Second, 10*time.Millisecond)

	a.Publish(Change{Kind: ChangeGrantSet, Role: RoleAffiliate,
		Grant: &Grant{Role: RoleAffiliate, Resource: "aff-links", Action: ActionView, Allowed: true}})

	local := receive(t, aLocal)
	require.Empty(t, local.Origin)

	remote := receive(t, bLocal)
	require.Equal(t, a.Origin(), remote.Origin)
	require.Equal(t, Resource("aff-links"), remote.Grant.Resource)

	select {
	case c := <-aLocal:
		t.Fatalf("origin received its own change twice: %+v", c)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestRedisNotifierListenFailsWithoutServer(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	n := NewRedisNotifier(client, "rbac.test", NewBroker(), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.Error(t, n.Listen(ctx))
}
