package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/DarkarBlays/inventario/internal/client"
	"github.com/DarkarBlays/inventario/internal/store"
	"github.com/spf13/cobra"
)

func newListCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List products",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.run(cmd, func(ctx context.Context, c *client.Client) error {
				products, err := c.ListProducts(ctx)
				if err != nil {
					return err
				}
				if g.json {
					return outputJSON(products)
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tSKU\tNAME\tPRICE\tSTOCK\tSYNC")
				for _, p := range products {
					fmt.Fprintf(w, "%d\t%s\t%s\t%.2f\t%d\t%s\n", p.ID, p.SKU, p.Name, p.Price, p.Stock, p.SyncState)
				}
				return w.Flush()
			})
		},
	}
}

func newGetCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return g.run(cmd, func(ctx context.Context, c *client.Client) error {
				p, err := c.GetProduct(ctx, id)
				if err != nil {
					return err
				}
				if g.json {
					return outputJSON(p)
				}
				printProduct(p)
				return nil
			})
		},
	}
}

func newCreateCmd(g *globals) *cobra.Command {
	var f store.ProductFields
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a product",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.run(cmd, func(ctx context.Context, c *client.Client) error {
				p, err := c.CreateProduct(ctx, f)
				if err != nil {
					return err
				}
				if g.json {
					return outputJSON(p)
				}
				fmt.Printf("Created product %d (sync: %s)\n", p.ID, p.SyncState)
				return nil
			})
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.SKU, "sku", "", "stock keeping unit")
	fl.StringVar(&f.Name, "name", "", "product name")
	fl.StringVar(&f.Description, "description", "", "description")
	fl.Float64Var(&f.Price, "price", 0, "unit price")
	fl.Int64Var(&f.Stock, "stock", 0, "units in stock")
	fl.StringVar(&f.Image, "image", "", "image URL")
	fl.BoolVar(&f.Active, "active", true, "whether the product is listed")
	for _, name := range []string{"name", "price", "stock"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newUpdateCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change fields of a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			patch, err := patchFromFlags(cmd)
			if err != nil {
				return err
			}
			if patch.Empty() {
				return fmt.Errorf("nothing to update: pass at least one field flag")
			}
			return g.run(cmd, func(ctx context.Context, c *client.Client) error {
				n, err := c.UpdateProduct(ctx, id, patch)
				if err != nil {
					return err
				}
				if g.json {
					return outputJSON(map[string]int64{"changed": n})
				}
				fmt.Printf("Updated product %d\n", id)
				return nil
			})
		},
	}
	fl := cmd.Flags()
	fl.String("sku", "", "stock keeping unit")
	fl.String("name", "", "product name")
	fl.String("description", "", "description")
	fl.Float64("price", 0, "unit price")
	fl.Int64("stock", 0, "units in stock")
	fl.String("image", "", "image URL")
	fl.Bool("active", false, "whether the product is listed")
	return cmd
}

// patchFromFlags keeps only the fields whose flags were given.
func patchFromFlags(cmd *cobra.Command) (store.ProductPatch, error) {
	var p store.ProductPatch
	fl := cmd.Flags()
	str := func(name string, dst **string) error {
		if !fl.Changed(name) {
			return nil
		}
		v, err := fl.GetString(name)
		*dst = &v
		return err
	}
	for name, dst := range map[string]**string{
		"sku":         &p.SKU,
		"name":        &p.Name,
		"description": &p.Description,
		"image":       &p.Image,
	} {
		if err := str(name, dst); err != nil {
			return p, err
		}
	}
	if fl.Changed("price") {
		v, err := fl.GetFloat64("price")
		if err != nil {
			return p, err
		}
		p.Price = &v
	}
	if fl.Changed("stock") {
		v, err := fl.GetInt64("stock")
		if err != nil {
			return p, err
		}
		p.Stock = &v
	}
	if fl.Changed("active") {
		v, err := fl.GetBool("active")
		if err != nil {
			return p, err
		}
		p.Active = &v
	}
	return p, nil
}

func newDeleteCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return g.run(cmd, func(ctx context.Context, c *client.Client) error {
				n, err := c.DeleteProduct(ctx, id)
				if err != nil {
					return err
				}
				if g.json {
					return outputJSON(map[string]int64{"changed": n})
				}
				fmt.Printf("Deleted product %d\n", id)
				return nil
			})
		},
	}
}

func printProduct(p *store.Product) {
	fmt.Printf("ID:          %d\n", p.ID)
	if p.SKU != "" {
		fmt.Printf("SKU:         %s\n", p.SKU)
	}
	fmt.Printf("Name:        %s\n", p.Name)
	if p.Description != "" {
		fmt.Printf("Description: %s\n", p.Description)
	}
	fmt.Printf("Price:       %.2f\n", p.Price)
	fmt.Printf("Stock:       %d\n", p.Stock)
	fmt.Printf("Active:      %v\n", p.Active)
	fmt.Printf("Sync:        %s\n", p.SyncState)
}
