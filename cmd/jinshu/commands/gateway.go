package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/jinshu-im/jinshu/internal/gateway"
	"github.com/jinshu-im/jinshu/pkg/database"
	"github.com/jinshu-im/jinshu/pkg/session"
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Run an account API node",
	Long: `Run an account API node. Gateway serves the HTTP account API: user
registration and lookup, plus the sign-in flow that issues the tokens comet
nodes verify through the authorizer.`,
	RunE: runGateway,
}

type gatewayConf struct {
	commonConf `mapstructure:",squash"`

	Redis   session.Config `mapstructure:"redis"`
	Gateway gateway.Config `mapstructure:"gateway"`
}

func runGateway(cmd *cobra.Command, args []string) error {
	conf := gatewayConf{
		commonConf: defaultCommon(),
		Redis:      session.DefaultConfig(),
		Gateway:    gateway.DefaultConfig(),
	}
	if err := loadConf(&conf); err != nil {
		return err
	}

	return runService("gateway", conf.commonConf, func(ctx context.Context) error {
		db, err := database.Open(conf.Gateway.Database, gateway.Models()...)
		if err != nil {
			return err
		}

		kv, err := session.NewRedisKV(ctx, conf.Redis)
		if err != nil {
			return err
		}
		defer kv.Close()

		handler := gateway.NewHandler(gateway.NewUserStore(db), session.NewSignInCache(kv))
		return gateway.Serve(ctx, conf.Gateway, gateway.NewRouter(handler))
	})
}
