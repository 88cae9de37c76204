package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/happydevs-studio/wool-witch/internal/pricing"
	"github.com/happydevs-studio/wool-witch/internal/repository"
	"github.com/spf13/cobra"
)

type OrderView struct {
	Order    *repository.Order     `json:"order"`
	Payments []repository.Payment `json:"payments"`
}

func NewOrderCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "order <id>",
		Short: "Show an order and its payments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, func(ctx context.Context, app *App) error {
				return runOrder(ctx, app, formatter(rootOpts, cmd), args[0])
			})
		},
	}
}

func runOrder(ctx context.Context, app *App, out *OutputFormatter, id string) error {
	order, err := app.Orders.GetOrder(ctx, id)
	if errors.Is(err, repository.ErrOrderNotFound) {
		return NewExitError(ExitFailure, fmt.Sprintf("order %s not found", id))
	}
	if err != nil {
		return backendError("failed to load order", err)
	}
	payments, err := app.Orders.ListPayments(ctx, id)
	if err != nil {
		return backendError("failed to load payments", err)
	}
	if payments == nil {
		payments = []repository.Payment{}
	}

	view := OrderView{Order: order, Payments: payments}
	return out.Success(view, func(w io.Writer) {
		fmt.Fprintf(w, "Order %s (%s)\n", order.ID, order.Status)
		fmt.Fprintf(w, "Customer: %s <%s>\n", order.Customer.Name, order.Customer.Email)
		for _, it := range order.Items {
			fmt.Fprintf(w, "  %d x %s @ %s\n", it.Quantity, it.ProductName, pricing.Display(it.UnitPrice))
		}
		fmt.Fprintf(w, "Total: %s\n", pricing.Display(order.Total))
		for _, p := range payments {
			fmt.Fprintf(w, "Payment %s: %s %s via %s\n", p.ID, p.Status, pricing.Display(p.Amount), p.Method)
		}
	})
}
