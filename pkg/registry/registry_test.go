package registry

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	uri, err := url.Parse(raw)
	require.NoError(t, err)
	return uri
}

func TestMemoryRegisterDiscover(t *testing.T) {
	ctx := context.Background()
	reg := NewMemory("jinshu")
	uri := mustParse(t, "http://10.0.0.7:9000/")

	keeper, err := reg.Register(ctx, "comet", uri)
	require.NoError(t, err)

	endpoints, err := reg.Discover(ctx, "comet")
	require.NoError(t, err)
	require.Len(t, endpoints, 1)
	assert.Equal(t, uri, endpoints["jinshu.comet.http://10.0.0.7:9000/"])

	// Other services are unaffected.
	endpoints, err = reg.Discover(ctx, "receiver")
	require.NoError(t, err)
	assert.Empty(t, endpoints)

	require.NoError(t, keeper.Close())

	endpoints, err = reg.Discover(ctx, "comet")
	require.NoError(t, err)
	assert.Empty(t, endpoints)
}

func TestMemoryWatch(t *testing.T) {
	ctx := context.Background()
	reg := NewMemory("jinshu")

	watcher, err := reg.Watch(ctx, "comet")
	require.NoError(t, err)
	defer watcher.Close()

	uri := mustParse(t, "http://10.0.0.7:9000/")
	keeper, err := reg.Register(ctx, "comet", uri)
	require.NoError(t, err)

	change := <-watcher.Changes()
	assert.Equal(t, ChangeCreate, change.Kind)
	assert.Equal(t, "jinshu.comet.http://10.0.0.7:9000/", change.Key)
	assert.Equal(t, uri, change.URI)

	require.NoError(t, keeper.Close())

	change = <-watcher.Changes()
	assert.Equal(t, ChangeDelete, change.Kind)
	assert.Equal(t, "jinshu.comet.http://10.0.0.7:9000/", change.Key)
	assert.Nil(t, change.URI)
}

func TestWatcherCloseEndsStream(t *testing.T) {
	reg := NewMemory("jinshu")

	watcher, err := reg.Watch(context.Background(), "comet")
	require.NoError(t, err)
	require.NoError(t, watcher.Close())

	_, ok := <-watcher.Changes()
	assert.False(t, ok)

	// Closing twice is fine.
	assert.NoError(t, watcher.Close())
}

func TestKeeperClose(t *testing.T) {
	started := make(chan struct{})
	keeper := NewKeeper(func(stop <-chan struct{}) error {
		close(started)
		<-stop
		return nil
	})

	<-started
	require.NoError(t, keeper.Close())

	select {
	case <-keeper.Done():
	default:
		t.Fatal("keeper not done after Close")
	}
	assert.NoError(t, keeper.Err())

	// Close is idempotent.
	assert.NoError(t, keeper.Close())
}

func TestKeeperFailure(t *testing.T) {
	keeper := NewKeeper(func(<-chan struct{}) error {
		return assert.AnError
	})

	select {
	case <-keeper.Done():
	case <-time.After(time.Second):
		t.Fatal("keeper did not finish")
	}
	assert.ErrorIs(t, keeper.Err(), assert.AnError)
}

func TestEtcdKeyScheme(t *testing.T) {
	e := &Etcd{namespace: "jinshu"}
	uri := mustParse(t, "http://10.0.0.7:9000/")

	assert.Equal(t, "jinshu.comet.", e.KeyPrefix("comet"))
	assert.Equal(t, "jinshu.comet.http://10.0.0.7:9000/", e.Key("comet", uri))
}

func TestTranslateAddresses(t *testing.T) {
	addrs := addresses(map[string]*url.URL{
		"jinshu.comet.http://10.0.0.7:9000/": mustParse(t, "http://10.0.0.7:9000/"),
		"jinshu.comet.http://10.0.0.8:9000/": mustParse(t, "http://10.0.0.8:9000/"),
	})
	require.Len(t, addrs, 2)

	hosts := map[string]bool{}
	for _, addr := range addrs {
		hosts[addr.Addr] = true
	}
	assert.True(t, hosts["10.0.0.7:9000"])
	assert.True(t, hosts["10.0.0.8:9000"])
}
