package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/jinshu-im/jinshu/internal/pusher"
	"github.com/jinshu-im/jinshu/pkg/queue"
	"github.com/jinshu-im/jinshu/pkg/registry"
	"github.com/jinshu-im/jinshu/pkg/session"
)

var pusherCmd = &cobra.Command{
	Use:   "pusher",
	Short: "Run a dispatch node",
	Long: `Run a dispatch node. Pusher consumes queued messages from the broker,
looks up each recipient's session in the directory and pushes the message to
the ingress node holding the connection. Undeliverable messages go to the
dead letter store when one is configured.`,
	RunE: runPusher,
}

type pusherConf struct {
	commonConf `mapstructure:",squash"`

	Etcd   registry.Config `mapstructure:"etcd"`
	Redis  session.Config  `mapstructure:"redis"`
	Queue  queue.Config    `mapstructure:"queue"`
	Pusher pusher.Config   `mapstructure:"pusher"`
}

func runPusher(cmd *cobra.Command, args []string) error {
	conf := pusherConf{
		commonConf: defaultCommon(),
		Etcd:       registry.DefaultConfig(),
		Redis:      session.DefaultConfig(),
		Queue:      queue.DefaultConfig(),
		Pusher:     pusher.DefaultConfig(),
	}
	if err := loadConf(&conf); err != nil {
		return err
	}

	return runService("pusher", conf.commonConf, func(ctx context.Context) error {
		reg, err := registry.NewEtcd(conf.Etcd)
		if err != nil {
			return err
		}
		defer reg.Close()

		kv, err := session.NewRedisKV(ctx, conf.Redis)
		if err != nil {
			return err
		}
		defer kv.Close()

		var deadLetters *queue.DeadLetterStore
		if conf.Pusher.DeadLetter.Enabled {
			deadLetters, err = queue.OpenDeadLetterStore(conf.Pusher.DeadLetter)
			if err != nil {
				return err
			}
			defer deadLetters.Close()
		}

		p, err := pusher.New(ctx, conf.Pusher.CometName, reg, session.NewStore(kv), deadLetters)
		if err != nil {
			return err
		}
		defer p.Close()

		consumer, err := queue.NewConsumer(conf.Queue)
		if err != nil {
			return err
		}
		defer consumer.Close()

		return consumer.Run(ctx, p)
	})
}
