package commands

import (
	"context"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/jinshu-im/jinshu/internal/receiver"
	"github.com/jinshu-im/jinshu/pkg/queue"
	"github.com/jinshu-im/jinshu/pkg/registry"
	"github.com/jinshu-im/jinshu/pkg/rpc"
)

var receiverCmd = &cobra.Command{
	Use:   "receiver",
	Short: "Run an ingestion node",
	Long: `Run an ingestion node. Receiver accepts messages from ingress nodes
over RPC and appends them to the broker, which decouples acceptance from
delivery.`,
	RunE: runReceiver,
}

type receiverConf struct {
	commonConf `mapstructure:",squash"`

	Etcd     registry.Config `mapstructure:"etcd"`
	Queue    queue.Config    `mapstructure:"queue"`
	Receiver receiver.Config `mapstructure:"receiver"`
}

func runReceiver(cmd *cobra.Command, args []string) error {
	conf := receiverConf{
		commonConf: defaultCommon(),
		Etcd:       registry.DefaultConfig(),
		Queue:      queue.DefaultConfig(),
		Receiver:   receiver.DefaultConfig(),
	}
	if err := loadConf(&conf); err != nil {
		return err
	}

	return runService("receiver", conf.commonConf, func(ctx context.Context) error {
		reg, err := registry.NewEtcd(conf.Etcd)
		if err != nil {
			return err
		}
		defer reg.Close()

		producer, err := queue.NewProducer(conf.Queue)
		if err != nil {
			return err
		}
		defer producer.Close()

		lis, uri, err := conf.Receiver.Service.Listen()
		if err != nil {
			return err
		}

		grpcServer := grpc.NewServer()
		rpc.RegisterReceiverServer(grpcServer, receiver.NewService(producer))

		keeper, err := reg.Register(ctx, conf.Receiver.Service.ServiceName, uri)
		if err != nil {
			_ = lis.Close()
			return err
		}
		defer keeper.Close()

		return rpc.Serve(ctx, grpcServer, lis, conf.Receiver.Service.ServiceName)
	})
}
