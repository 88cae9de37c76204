package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/happydevs-studio/wool-witch/internal/domain"
	"github.com/happydevs-studio/wool-witch/internal/pricing"
	"github.com/happydevs-studio/wool-witch/internal/repository"
	"github.com/spf13/cobra"
)

type ProductsOptions struct {
	Category string
	Search   string
	Limit    int
	Offset   int
}

func NewProductsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ProductsOptions{}

	cmd := &cobra.Command{
		Use:   "products",
		Short: "List products",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, func(ctx context.Context, app *App) error {
				return runProducts(ctx, app, formatter(rootOpts, cmd), opts)
			})
		},
	}

	cmd.Flags().StringVar(&opts.Category, "category", "", "only products in this category")
	cmd.Flags().StringVarP(&opts.Search, "search", "s", "", "match name or description")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of products (0 for all)")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "number of products to skip")

	return cmd
}

func runProducts(ctx context.Context, app *App, out *OutputFormatter, opts *ProductsOptions) error {
	products, err := app.Catalog.Products(ctx, repository.Filter{
		Category: opts.Category,
		Search:   opts.Search,
		Limit:    opts.Limit,
		Offset:   opts.Offset,
	})
	if err != nil {
		return backendError("failed to list products", err)
	}
	if products == nil {
		products = []domain.Product{}
	}

	return out.Success(products, func(w io.Writer) {
		if len(products) == 0 {
			fmt.Fprintln(w, "No products found.")
			return
		}
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tPRICE\tAVAILABLE")
		for _, p := range products {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.ID, p.Name, p.Category, priceLabel(p), yesNo(p.IsAvailable))
		}
		tw.Flush()
	})
}

func NewProductCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "product <id>",
		Short: "Show one product and its options",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, func(ctx context.Context, app *App) error {
				return runProduct(ctx, app, formatter(rootOpts, cmd), args[0])
			})
		},
	}
}

func runProduct(ctx context.Context, app *App, out *OutputFormatter, id string) error {
	p, err := app.Catalog.Product(ctx, id)
	if errors.Is(err, repository.ErrProductNotFound) {
		return NewExitError(ExitFailure, fmt.Sprintf("product %s not found", id))
	}
	if err != nil {
		return backendError("failed to load product", err)
	}

	return out.Success(p, func(w io.Writer) {
		fmt.Fprintf(w, "%s (%s)\n", p.Name, p.ID)
		if p.Description != "" {
			fmt.Fprintln(w, p.Description)
		}
		fmt.Fprintf(w, "Price:     %s\n", priceLabel(*p))
		fmt.Fprintf(w, "Delivery:  %s per item\n", pricing.Display(p.Delivery()))
		fmt.Fprintf(w, "Available: %s (%d in stock)\n", yesNo(p.IsAvailable), p.StockQuantity)
		for _, prop := range p.CustomProperties {
			fmt.Fprintf(w, "  %s\n", describeProperty(prop))
		}
	})
}

func NewCategoriesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List product categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, func(ctx context.Context, app *App) error {
				categories, err := app.Catalog.Categories(ctx)
				if err != nil {
					return backendError("failed to list categories", err)
				}
				if categories == nil {
					categories = []string{}
				}
				return formatter(rootOpts, cmd).Success(categories, func(w io.Writer) {
					for _, c := range categories {
						fmt.Fprintln(w, c)
					}
				})
			})
		},
	}
}

func priceLabel(p domain.Product) string {
	r := pricing.ProductRange(p)
	if r.Min.Equal(r.Max) {
		return pricing.Display(r.Min)
	}
	return pricing.Display(r.Min) + " - " + pricing.Display(r.Max)
}

func describeProperty(prop domain.CustomProperty) string {
	b := prop.Base()
	label := fmt.Sprintf("%s [%s, %s]", b.Label, b.ID, prop.Type())
	if b.Required {
		label += " required"
	}
	switch p := prop.(type) {
	case domain.Dropdown:
		opts := make([]string, len(p.Options))
		for i, o := range p.Options {
			opts[i] = o
			if price, ok := p.OverridePrice(o); ok {
				opts[i] += " (" + pricing.Display(price) + ")"
			}
		}
		label += ": " + strings.Join(opts, ", ")
	case domain.Text:
		if p.MaxLength > 0 {
			label += fmt.Sprintf(": up to %d characters", p.MaxLength)
		}
	case domain.Textarea:
		if p.MaxLength > 0 {
			label += fmt.Sprintf(": up to %d characters", p.MaxLength)
		}
	case domain.Number:
		if p.Min != nil && p.Max != nil {
			label += fmt.Sprintf(": %g to %g", *p.Min, *p.Max)
		}
	}
	return label
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// backendError classifies a read failure: an open breaker or an unreachable
// database is an environment problem, not a refusal.
func backendError(message string, err error) error {
	if errors.Is(err, repository.ErrBackendUnavailable) {
		return WrapExitError(ExitCommandError, "the shop is temporarily unavailable", err)
	}
	return WrapExitError(ExitCommandError, message, err)
}
