package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/jinshu-im/jinshu/internal/storage"
	"github.com/jinshu-im/jinshu/pkg/database"
	"github.com/jinshu-im/jinshu/pkg/queue"
)

var storageCmd = &cobra.Command{
	Use:   "storage",
	Short: "Run an archive node",
	Long: `Run an archive node. Storage consumes every message flowing through
the broker and writes it to the message archive database.`,
	RunE: runStorage,
}

type storageConf struct {
	commonConf `mapstructure:",squash"`

	Queue   queue.Config   `mapstructure:"queue"`
	Storage storage.Config `mapstructure:"storage"`
}

func runStorage(cmd *cobra.Command, args []string) error {
	conf := storageConf{
		commonConf: defaultCommon(),
		Queue:      queue.DefaultConfig(),
		Storage:    storage.DefaultConfig(),
	}
	if err := loadConf(&conf); err != nil {
		return err
	}

	return runService("storage", conf.commonConf, func(ctx context.Context) error {
		db, err := database.Open(conf.Storage.Database, storage.Models()...)
		if err != nil {
			return err
		}

		consumer, err := queue.NewConsumer(conf.Queue)
		if err != nil {
			return err
		}
		defer consumer.Close()

		return consumer.Run(ctx, storage.NewArchiver(db))
	})
}
