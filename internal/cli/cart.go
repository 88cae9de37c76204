package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/happydevs-studio/wool-witch/internal/cart"
	"github.com/happydevs-studio/wool-witch/internal/domain"
	"github.com/happydevs-studio/wool-witch/internal/pricing"
	"github.com/happydevs-studio/wool-witch/internal/repository"
	"github.com/happydevs-studio/wool-witch/internal/service"
	"github.com/spf13/cobra"
)

func NewCartCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Show and change the cart",
	}

	cmd.AddCommand(newCartShowCommand(rootOpts))
	cmd.AddCommand(newCartAddCommand(rootOpts))
	cmd.AddCommand(newCartRemoveLineCommand(rootOpts))
	cmd.AddCommand(newCartRemoveProductCommand(rootOpts))
	cmd.AddCommand(newCartSetQtyCommand(rootOpts))
	cmd.AddCommand(newCartSetProductQtyCommand(rootOpts))
	cmd.AddCommand(newCartSelectCommand(rootOpts))
	cmd.AddCommand(newCartClearCommand(rootOpts))

	return cmd
}

// cartCommand opens the session, which prunes lines whose products went
// away, runs fn and prints the resulting cart.
func cartCommand(rootOpts *RootOptions, fn func(ctx context.Context, app *App, out *OutputFormatter) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		out := formatter(rootOpts, cmd)
		return withApp(cmd, rootOpts, func(ctx context.Context, app *App) error {
			openSession(ctx, app, out)
			if fn != nil {
				if err := fn(ctx, app, out); err != nil {
					return err
				}
			}
			return printCart(out, app.Cart.Summary())
		})
	}
}

// openSession runs the load-time cart check and tells the shopper what it
// changed.
func openSession(ctx context.Context, app *App, out *OutputFormatter) service.OpenResult {
	res := app.Storefront.Open(ctx)
	if res.Removed > 0 {
		out.Notice("We removed %d unavailable item(s) from your cart.", res.Removed)
	}
	if res.Refreshed > 0 {
		out.Notice("Prices changed for %d item(s) in your cart.", res.Refreshed)
	}
	return res
}

func printCart(out *OutputFormatter, s cart.Summary) error {
	if s.Lines == nil {
		s.Lines = []domain.LineItem{}
	}
	return out.Success(s, func(w io.Writer) {
		if len(s.Lines) == 0 {
			fmt.Fprintln(w, "Your cart is empty.")
			return
		}
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "LINE\tPRODUCT\tOPTIONS\tQTY\tUNIT\tTOTAL")
		for _, l := range s.Lines {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
				l.ID, l.Product.Name, formatSelections(l.Selections), l.Quantity,
				pricing.Display(pricing.EffectivePrice(l)), pricing.Display(pricing.LineTotal(l)))
		}
		tw.Flush()
		fmt.Fprintf(w, "\nItems:     %d\n", s.ItemCount)
		fmt.Fprintf(w, "Subtotal:  %s\n", pricing.Display(s.Subtotal))
		fmt.Fprintf(w, "Delivery:  %s\n", pricing.Display(s.DeliveryTotal))
		fmt.Fprintf(w, "Total:     %s\n", pricing.Display(s.Total))
	})
}

func formatSelections(s domain.Selections) string {
	if len(s) == 0 {
		return "-"
	}
	parts := make([]string, len(s))
	for i, sel := range s {
		parts[i] = sel.PropertyID + "=" + sel.Value
	}
	return strings.Join(parts, ", ")
}

// parseSelections turns repeated --select property=value flags into
// selections.
func parseSelections(raw []string) (domain.Selections, error) {
	var out domain.Selections
	for _, r := range raw {
		id, value, ok := strings.Cut(r, "=")
		if !ok || strings.TrimSpace(id) == "" {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("invalid selection %q: want property=value", r))
		}
		out = append(out, domain.Selection{PropertyID: strings.TrimSpace(id), Value: value})
	}
	return out, nil
}

func parseQuantity(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, NewExitError(ExitCommandError, fmt.Sprintf("invalid quantity %q", raw))
	}
	return n, nil
}

func lineError(err error, lineID string) error {
	if errors.Is(err, cart.ErrLineNotFound) {
		return NewExitError(ExitFailure, fmt.Sprintf("no cart line %s", lineID))
	}
	return WrapExitError(ExitCommandError, "failed to update cart", err)
}

func newCartShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the cart and its totals",
		Args:  cobra.NoArgs,
		RunE:  cartCommand(rootOpts, nil),
	}
}

func newCartAddCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		quantity int
		selects  []string
	)

	cmd := &cobra.Command{
		Use:   "add <product-id>",
		Short: "Add a product to the cart",
		Long: `Add a product to the cart.

Adding a product with the same options as an existing line increases that
line's quantity; different options start a new line.`,
		Args: cobra.ExactArgs(1),
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return cartCommand(rootOpts, func(ctx context.Context, app *App, out *OutputFormatter) error {
			selections, err := parseSelections(selects)
			if err != nil {
				return err
			}
			p, err := app.Catalog.Product(ctx, args[0])
			if errors.Is(err, repository.ErrProductNotFound) {
				return NewExitError(ExitFailure, fmt.Sprintf("product %s not found", args[0]))
			}
			if err != nil {
				return backendError("failed to load product", err)
			}
			if !p.IsAvailable {
				return NewExitError(ExitFailure, fmt.Sprintf("%s is currently unavailable", p.Name))
			}
			if err := p.CustomProperties.CheckSelections(selections); err != nil {
				return WrapExitError(ExitFailure, "invalid options", err)
			}
			line, err := app.Cart.AddItem(ctx, *p, quantity, selections)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to add item", err)
			}
			out.Notice("Added %d x %s (line %s).", quantity, p.Name, line.ID)
			return nil
		})(cmd, args)
	}

	cmd.Flags().IntVarP(&quantity, "qty", "q", 1, "quantity to add")
	cmd.Flags().StringArrayVar(&selects, "select", nil, "option as property=value (repeatable)")

	return cmd
}

func newCartRemoveLineCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove-line <line-id>",
		Short: "Remove one cart line",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return cartCommand(rootOpts, func(ctx context.Context, app *App, _ *OutputFormatter) error {
			if err := app.Cart.RemoveLine(ctx, args[0]); err != nil {
				return lineError(err, args[0])
			}
			return nil
		})(cmd, args)
	}
	return cmd
}

func newCartRemoveProductCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove-product <product-id>",
		Short: "Remove every line of a product",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return cartCommand(rootOpts, func(ctx context.Context, app *App, out *OutputFormatter) error {
			n := app.Cart.RemoveAllLinesForProduct(ctx, args[0])
			out.Notice("Removed %d line(s).", n)
			return nil
		})(cmd, args)
	}
	return cmd
}

func newCartSetQtyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set-qty <line-id> <quantity>",
		Short: "Set the quantity of one line; 0 removes it",
		Args:  cobra.ExactArgs(2),
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return cartCommand(rootOpts, func(ctx context.Context, app *App, _ *OutputFormatter) error {
			q, err := parseQuantity(args[1])
			if err != nil {
				return err
			}
			if err := app.Cart.UpdateLineQuantity(ctx, args[0], q); err != nil {
				return lineError(err, args[0])
			}
			return nil
		})(cmd, args)
	}
	return cmd
}

func newCartSetProductQtyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set-product-qty <product-id> <quantity>",
		Short: "Set the quantity of every line of a product; 0 removes them",
		Args:  cobra.ExactArgs(2),
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return cartCommand(rootOpts, func(ctx context.Context, app *App, out *OutputFormatter) error {
			q, err := parseQuantity(args[1])
			if err != nil {
				return err
			}
			n := app.Cart.UpdateProductQuantity(ctx, args[0], q)
			out.Notice("Updated %d line(s).", n)
			return nil
		})(cmd, args)
	}
	return cmd
}

func newCartSelectCommand(rootOpts *RootOptions) *cobra.Command {
	var selects []string

	cmd := &cobra.Command{
		Use:   "select <line-id>",
		Short: "Replace the options of one line",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return cartCommand(rootOpts, func(ctx context.Context, app *App, _ *OutputFormatter) error {
			selections, err := parseSelections(selects)
			if err != nil {
				return err
			}
			var product *domain.Product
			for _, l := range app.Cart.Lines() {
				if l.ID == args[0] {
					product = &l.Product
					break
				}
			}
			if product == nil {
				return lineError(cart.ErrLineNotFound, args[0])
			}
			if err := product.CustomProperties.CheckSelections(selections); err != nil {
				return WrapExitError(ExitFailure, "invalid options", err)
			}
			if err := app.Cart.UpdateSelections(ctx, args[0], selections); err != nil {
				return lineError(err, args[0])
			}
			return nil
		})(cmd, args)
	}

	cmd.Flags().StringArrayVar(&selects, "select", nil, "option as property=value (repeatable)")
	return cmd
}

func newCartClearCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Empty the cart",
		Args:  cobra.NoArgs,
		RunE: cartCommand(rootOpts, func(ctx context.Context, app *App, _ *OutputFormatter) error {
			app.Cart.Clear(ctx)
			return nil
		}),
	}
}
