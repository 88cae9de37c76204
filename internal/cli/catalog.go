package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/happydevs-studio/wool-witch/internal/domain"
	"github.com/happydevs-studio/wool-witch/internal/repository"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// CatalogFile is the layout of a catalog import document.
type CatalogFile struct {
	Products []domain.Product `json:"products"`
}

type ImportResult struct {
	Created []string `json:"created"`
	Updated []string `json:"updated"`
}

func NewCatalogCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage catalog products",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Create or update products from a YAML or JSON file",
		Long: `Create or update products from a YAML or JSON file.

The file holds a top-level "products" list using the same field names as
the JSON product representation. Products whose id already exists are
updated in place.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			products, err := readCatalogFile(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read catalog file", err)
			}
			return withApp(cmd, rootOpts, func(ctx context.Context, app *App) error {
				return runImport(ctx, app, formatter(rootOpts, cmd), products)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <product-id>",
		Short: "Delete a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, func(ctx context.Context, app *App) error {
				err := app.Catalog.DeleteProduct(ctx, args[0])
				if errors.Is(err, repository.ErrProductNotFound) {
					return NewExitError(ExitFailure, fmt.Sprintf("product %s not found", args[0]))
				}
				if err != nil {
					return backendError("failed to delete product", err)
				}
				return formatter(rootOpts, cmd).Success(map[string]string{"deleted": args[0]}, func(w io.Writer) {
					fmt.Fprintf(w, "Deleted %s.\n", args[0])
				})
			})
		},
	})

	return cmd
}

// readCatalogFile decodes YAML generically and re-encodes it as JSON so
// products go through the same decoding, custom properties included, as
// every other product payload.
func readCatalogFile(path string) ([]domain.Product, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("convert %s: %w", path, err)
	}
	var file CatalogFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode products in %s: %w", path, err)
	}
	if len(file.Products) == 0 {
		return nil, fmt.Errorf("%s lists no products", path)
	}
	return file.Products, nil
}

func runImport(ctx context.Context, app *App, out *OutputFormatter, products []domain.Product) error {
	res := ImportResult{Created: []string{}, Updated: []string{}}
	for _, p := range products {
		created, err := app.Catalog.CreateProduct(ctx, p)
		if errors.Is(err, repository.ErrDuplicateProduct) {
			updated, err := app.Catalog.UpdateProduct(ctx, p)
			if err != nil {
				return importError(p, err)
			}
			res.Updated = append(res.Updated, updated.ID)
			continue
		}
		if err != nil {
			return importError(p, err)
		}
		res.Created = append(res.Created, created.ID)
	}

	return out.Success(res, func(w io.Writer) {
		fmt.Fprintf(w, "Imported %d product(s): %d created, %d updated.\n",
			len(res.Created)+len(res.Updated), len(res.Created), len(res.Updated))
	})
}

func importError(p domain.Product, err error) error {
	name := p.ID
	if name == "" {
		name = p.Name
	}
	if repository.IsRejection(err) {
		return WrapExitError(ExitFailure, fmt.Sprintf("product %s was rejected", name), err)
	}
	return backendError(fmt.Sprintf("failed to import product %s", name), err)
}
