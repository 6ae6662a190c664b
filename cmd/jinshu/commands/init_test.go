package commands

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinshu-im/jinshu/pkg/config"
	"github.com/jinshu-im/jinshu/pkg/protocol"
)

// The generated sample must load back into every service configuration, so
// key spellings and value shapes are checked against the real structs.
func TestSampleConfigLoads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jinshu.yaml")
	require.NoError(t, config.Save(sampleConfig(), path))
	opts := config.Options{Files: []string{path}}

	t.Run("comet", func(t *testing.T) {
		var conf cometConf
		require.NoError(t, config.Load(opts, &conf))
		assert.Equal(t, 9000, conf.Comet.Port)
		assert.Equal(t, protocol.CodecJSON, conf.Comet.Codec)
		assert.Equal(t, 10*time.Second, conf.Comet.HandshakeTimeout)
		assert.Equal(t, "comet", conf.Comet.Service.ServiceName)
		assert.Equal(t, "receiver", conf.Comet.ReceiverName)
		assert.Equal(t, "localhost:2379", conf.Etcd.Endpoints)
		assert.Equal(t, 6379, conf.Redis.Port)
	})

	t.Run("receiver", func(t *testing.T) {
		var conf receiverConf
		require.NoError(t, config.Load(opts, &conf))
		assert.Equal(t, 9100, conf.Receiver.Service.ListenPort)
		assert.Equal(t, "kafka", conf.Queue.Kind)
		assert.Equal(t, 3*time.Second, conf.Queue.Kafka.Producer.MessageTimeout)
	})

	t.Run("pusher", func(t *testing.T) {
		var conf pusherConf
		require.NoError(t, config.Load(opts, &conf))
		assert.Equal(t, "comet", conf.Pusher.CometName)
		assert.False(t, conf.Pusher.DeadLetter.Enabled)
		assert.Equal(t, "jinshu.group", conf.Queue.Kafka.Consumer.GroupID)
	})

	t.Run("authorizer", func(t *testing.T) {
		var conf authorizerConf
		require.NoError(t, config.Load(opts, &conf))
		assert.Equal(t, 9200, conf.Authorizer.Service.ListenPort)
	})

	t.Run("gateway", func(t *testing.T) {
		var conf gatewayConf
		require.NoError(t, config.Load(opts, &conf))
		assert.Equal(t, 9300, conf.Gateway.Port)
		assert.Equal(t, "jinshu.db", conf.Gateway.Database.SQLite.Path)
	})

	t.Run("storage", func(t *testing.T) {
		var conf storageConf
		require.NoError(t, config.Load(opts, &conf))
		assert.Equal(t, "jinshu.db", conf.Storage.Database.SQLite.Path)
	})

	t.Run("common", func(t *testing.T) {
		var conf cometConf
		require.NoError(t, config.Load(opts, &conf))
		assert.Equal(t, "INFO", conf.Logging.Level)
		assert.Equal(t, 1.0, conf.Telemetry.SampleRate)
		assert.Equal(t, 9090, conf.Metrics.Port)
	})
}
