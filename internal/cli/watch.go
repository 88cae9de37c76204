package cli

import (
	"context"

	"github.com/happydevs-studio/wool-witch/internal/publisher"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	var group string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Drop cached products as orders are placed anywhere",
		Long: `Follow order events from Kafka and invalidate the cached copies of every
purchased product, so stock seen by this client stays current when other
clients place orders. Runs until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, func(ctx context.Context, app *App) error {
				brokers := app.Config.Kafka.Brokers
				if len(brokers) == 0 {
					return NewExitError(ExitCommandError, "watch needs kafka.brokers in the configuration")
				}
				consumer := publisher.NewConsumer(app.Config.Kafka.Topic, group, invalidateOrdered(app), app.Log.Named("watch"), brokers...)
				defer consumer.Close()

				formatter(rootOpts, cmd).Notice("Watching %s for placed orders.", app.Config.Kafka.Topic)
				consumer.Run(ctx)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&group, "group", "storefront-cache", "Kafka consumer group")
	return cmd
}

func invalidateOrdered(app *App) publisher.OrderHandler {
	return func(ctx context.Context, event publisher.OrderPlaced) error {
		ids := event.ProductIDs()
		app.Catalog.InvalidateProducts(ctx, ids...)
		app.Log.Info("invalidated ordered products", zap.String("order_id", event.OrderID), zap.Strings("product_ids", ids))
		return nil
	}
}
