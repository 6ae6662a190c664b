package registry

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
)

func putEvent(key, value string) *clientv3.Event {
	return &clientv3.Event{
		Type: clientv3.EventTypePut,
		Kv:   &mvccpb.KeyValue{Key: []byte(key), Value: []byte(value)},
	}
}

func TestTranslateEvent(t *testing.T) {
	change, ok := translateEvent(putEvent(
		"jinshu.comet.http://10.0.0.7:9000/", "http://10.0.0.7:9000/"))
	require.True(t, ok)
	assert.Equal(t, ChangeCreate, change.Kind)
	assert.Equal(t, "jinshu.comet.http://10.0.0.7:9000/", change.Key)
	assert.Equal(t, "10.0.0.7:9000", change.URI.Host)

	change, ok = translateEvent(&clientv3.Event{
		Type: clientv3.EventTypeDelete,
		Kv:   &mvccpb.KeyValue{Key: []byte("jinshu.comet.http://10.0.0.7:9000/")},
	})
	require.True(t, ok)
	assert.Equal(t, ChangeDelete, change.Kind)
	assert.Nil(t, change.URI)

	_, ok = translateEvent(putEvent("jinshu.comet.bad", "::not-a-uri"))
	assert.False(t, ok)
}

func TestEtcdWatcherCloseWithFullBuffer(t *testing.T) {
	events := make(chan clientv3.WatchResponse, 1)
	w := &etcdWatcher{
		changes: make(chan Change, 16),
		cancel:  func() {},
		stopped: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go w.run(events)

	// More churn than the change buffer holds, and nobody draining it, so
	// run ends up parked on the send.
	var resp clientv3.WatchResponse
	for i := 0; i < 2*cap(w.changes); i++ {
		resp.Events = append(resp.Events, putEvent(
			fmt.Sprintf("jinshu.comet.http://10.0.0.%d:9000/", i),
			fmt.Sprintf("http://10.0.0.%d:9000/", i)))
	}
	events <- resp

	closed := make(chan struct{})
	go func() {
		_ = w.Close()
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close hung with a full change buffer")
	}
}
