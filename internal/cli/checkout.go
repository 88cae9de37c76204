package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/happydevs-studio/wool-witch/internal/pricing"
	"github.com/happydevs-studio/wool-witch/internal/repository"
	"github.com/happydevs-studio/wool-witch/internal/service"
	"github.com/spf13/cobra"
)

type CheckoutOptions struct {
	Name          string
	Email         string
	Phone         string
	Address       string
	Method        string
	PaymentID     string
	PaymentStatus string
}

func NewCheckoutCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckoutOptions{}

	cmd := &cobra.Command{
		Use:   "checkout",
		Short: "Place an order for the cart",
		Long: `Place an order for everything in the cart.

Every line is checked against the current catalog first. Lines whose
product was removed or became unavailable are dropped. If a price changed,
the cart is updated to the new price and the order is not placed, so it can
be reviewed before checking out again.

Pass --payment-id and --payment-status when the payment provider has already
confirmed the charge; otherwise the payment is recorded as pending.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := formatter(rootOpts, cmd)
			return withApp(cmd, rootOpts, func(ctx context.Context, app *App) error {
				return runCheckout(ctx, app, out, opts)
			})
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "customer name")
	cmd.Flags().StringVar(&opts.Email, "email", "", "customer email")
	cmd.Flags().StringVar(&opts.Phone, "phone", "", "customer phone")
	cmd.Flags().StringVar(&opts.Address, "address", "", "delivery address")
	cmd.Flags().StringVar(&opts.Method, "method", string(repository.PaymentCard), "payment method (card|paypal|bank_transfer)")
	cmd.Flags().StringVar(&opts.PaymentID, "payment-id", "", "payment id assigned by the provider")
	cmd.Flags().StringVar(&opts.PaymentStatus, "payment-status", "", "payment status reported by the provider (completed|failed)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("address")

	return cmd
}

func runCheckout(ctx context.Context, app *App, out *OutputFormatter, opts *CheckoutOptions) error {
	// Never charge a price the shopper has not seen.
	if opened := openSession(ctx, app, out); opened.Refreshed > 0 {
		return WrapExitError(ExitFailure, service.UserMessage(service.ErrCartChanged), service.ErrCartChanged)
	}

	req := service.CheckoutRequest{
		Customer: repository.Customer{
			Name:    opts.Name,
			Email:   opts.Email,
			Phone:   opts.Phone,
			Address: opts.Address,
		},
		PaymentMethod: repository.PaymentMethod(opts.Method),
	}
	if opts.PaymentID != "" || opts.PaymentStatus != "" {
		req.Payment = &service.ProviderPayment{
			ExternalID: opts.PaymentID,
			Status:     repository.PaymentStatus(opts.PaymentStatus),
		}
	}

	res, err := app.Checkout.Place(ctx, req)
	if err != nil {
		var changed *service.ItemsChangedError
		if errors.As(err, &changed) {
			for _, it := range changed.Items {
				out.Notice("  %s: %s", it.Line.Product.Name, it.Reason)
			}
		}
		return WrapExitError(checkoutExitCode(err), service.UserMessage(err), err)
	}

	return out.Success(res, func(w io.Writer) {
		fmt.Fprintf(w, "Order %s placed.\n", res.OrderID)
		fmt.Fprintf(w, "Items:     %d\n", res.ItemCount)
		fmt.Fprintf(w, "Subtotal:  %s\n", pricing.Display(res.Subtotal))
		fmt.Fprintf(w, "Delivery:  %s\n", pricing.Display(res.DeliveryTotal))
		fmt.Fprintf(w, "Total:     %s\n", pricing.Display(res.Total))
	})
}

func checkoutExitCode(err error) int {
	switch {
	case errors.Is(err, service.ErrEmptyCart),
		errors.Is(err, service.ErrCartChanged),
		errors.Is(err, service.ErrOrderRejected),
		errors.Is(err, service.ErrInvalidPayment):
		return ExitFailure
	default:
		return ExitCommandError
	}
}
