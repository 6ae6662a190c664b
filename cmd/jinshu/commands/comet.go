package commands

import (
	"context"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/jinshu-im/jinshu/internal/comet"
	"github.com/jinshu-im/jinshu/pkg/registry"
	"github.com/jinshu-im/jinshu/pkg/rpc"
	"github.com/jinshu-im/jinshu/pkg/session"
)

var cometCmd = &cobra.Command{
	Use:   "comet",
	Short: "Run an ingress node",
	Long: `Run an ingress node. Comet terminates client TCP connections, checks
sign-in credentials against the authorizer, records each session in the
directory and forwards sent messages to the receiver. Queued messages for
connected users arrive over its push RPC endpoint.`,
	RunE: runComet,
}

type cometConf struct {
	commonConf `mapstructure:",squash"`

	Etcd  registry.Config `mapstructure:"etcd"`
	Redis session.Config  `mapstructure:"redis"`
	Comet comet.Config    `mapstructure:"comet"`
}

func runComet(cmd *cobra.Command, args []string) error {
	conf := cometConf{
		commonConf: defaultCommon(),
		Etcd:       registry.DefaultConfig(),
		Redis:      session.DefaultConfig(),
		Comet:      comet.DefaultConfig(),
	}
	if err := loadConf(&conf); err != nil {
		return err
	}

	return runService("comet", conf.commonConf, func(ctx context.Context) error {
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

		receiverConn, receiverKeeper, err := registry.DiscoverConn(
			ctx, reg, conf.Comet.ReceiverName, rpc.DialOptions()...)
		if err != nil {
			return err
		}
		defer receiverConn.Close()
		defer receiverKeeper.Close()

		authorizerConn, authorizerKeeper, err := registry.DiscoverConn(
			ctx, reg, conf.Comet.AuthorizerName, rpc.DialOptions()...)
		if err != nil {
			return err
		}
		defer authorizerConn.Close()
		defer authorizerKeeper.Close()

		lis, uri, err := conf.Comet.Service.Listen()
		if err != nil {
			return err
		}

		// Sessions point at this node through its registry key, so the
		// manager must use the exact key the registration writes.
		manager := comet.NewConnectionManager(
			reg.Key(conf.Comet.Service.ServiceName, uri),
			session.NewStore(kv),
		)
		server := comet.NewServer(conf.Comet, manager,
			rpc.NewAuthorizerClient(authorizerConn),
			rpc.NewReceiverClient(receiverConn),
		)

		grpcServer := grpc.NewServer()
		rpc.RegisterCometServer(grpcServer, comet.NewPushService(manager))

		keeper, err := reg.Register(ctx, conf.Comet.Service.ServiceName, uri)
		if err != nil {
			_ = lis.Close()
			return err
		}
		defer keeper.Close()

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		errCh := make(chan error, 2)
		go func() { errCh <- rpc.Serve(ctx, grpcServer, lis, conf.Comet.Service.ServiceName) }()
		go func() { errCh <- server.Serve(ctx) }()

		var firstErr error
		for i := 0; i < 2; i++ {
			if err := <-errCh; err != nil {
				cancel()
				if firstErr == nil {
					firstErr = err
				}
			}
		}
		return firstErr
	})
}
