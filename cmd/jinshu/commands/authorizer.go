package commands

import (
	"context"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/jinshu-im/jinshu/internal/authorizer"
	"github.com/jinshu-im/jinshu/pkg/registry"
	"github.com/jinshu-im/jinshu/pkg/rpc"
	"github.com/jinshu-im/jinshu/pkg/session"
)

var authorizerCmd = &cobra.Command{
	Use:   "authorizer",
	Short: "Run a credential check node",
	Long: `Run a credential check node. Authorizer verifies sign-in tokens
against the entries the gateway caches at sign-in time.`,
	RunE: runAuthorizer,
}

type authorizerConf struct {
	commonConf `mapstructure:",squash"`

	Etcd       registry.Config   `mapstructure:"etcd"`
	Redis      session.Config    `mapstructure:"redis"`
	Authorizer authorizer.Config `mapstructure:"authorizer"`
}

func runAuthorizer(cmd *cobra.Command, args []string) error {
	conf := authorizerConf{
		commonConf: defaultCommon(),
		Etcd:       registry.DefaultConfig(),
		Redis:      session.DefaultConfig(),
		Authorizer: authorizer.DefaultConfig(),
	}
	if err := loadConf(&conf); err != nil {
		return err
	}

	return runService("authorizer", conf.commonConf, func(ctx context.Context) error {
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

		lis, uri, err := conf.Authorizer.Service.Listen()
		if err != nil {
			return err
		}

		grpcServer := grpc.NewServer()
		rpc.RegisterAuthorizerServer(grpcServer, authorizer.NewService(session.NewSignInCache(kv)))

		keeper, err := reg.Register(ctx, conf.Authorizer.Service.ServiceName, uri)
		if err != nil {
			_ = lis.Close()
			return err
		}
		defer keeper.Close()

		return rpc.Serve(ctx, grpcServer, lis, conf.Authorizer.Service.ServiceName)
	})
}
