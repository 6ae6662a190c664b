package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledIsNoOp(t *testing.T) {
	Init(Config{Enabled: false})
	assert.False(t, IsEnabled())

	// None of these may panic while disabled.
	ConnectionOpened()
	ConnectionClosed()
	PduReceived()
	PduSent()
	MessageEnqueued("ok")
	MessagePushed("ok", time.Millisecond)
	DeadLetterStored()
	SignInChecked("rejected")
}

func TestCollectorsExposed(t *testing.T) {
	Init(Config{Enabled: true, Port: 9090})
	require.True(t, IsEnabled())

	ConnectionOpened()
	PduReceived()
	MessagePushed("ok", 5*time.Millisecond)
	SignInChecked("ok")

	recorder := httptest.NewRecorder()
	Handler().ServeHTTP(recorder, httptest.NewRequest("GET", "/metrics", nil))

	body := recorder.Body.String()
	assert.Contains(t, body, "jinshu_comet_connections 1")
	assert.Contains(t, body, `jinshu_comet_pdus_total{direction="in"} 1`)
	assert.Contains(t, body, `jinshu_pusher_pushed_total{result="ok"} 1`)
	assert.Contains(t, body, `jinshu_authorizer_sign_in_total{result="ok"} 1`)
}
