package commands

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/curasupply/curaledger/internal/cart"
)

func newCartCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Manage the storefront cart and favorites",
	}
	cmd.AddCommand(
		newCartAddCommand(opts),
		newCartRemoveCommand(opts),
		newCartSetCommand(opts),
		newCartFavCommand(opts),
		newCartShowCommand(opts),
	)
	return cmd
}

// updateCart loads the configured cart, applies fn and saves it.
func updateCart(opts *options, fn func(c *cart.Cart) error) error {
	path, err := cartPath(opts)
	if err != nil {
		return err
	}
	c, err := cart.Load(path)
	if err != nil {
		return err
	}
	if err := fn(c); err != nil {
		return err
	}
	return c.Save(path)
}

func cartPath(opts *options) (string, error) {
	cfg, err := opts.loadConfig()
	if err != nil {
		return "", err
	}
	return opts.path(cfg.Cart.Path), nil
}

func newCartAddCommand(opts *options) *cobra.Command {
	var item cart.Item
	var price string

	cmd := &cobra.Command{
		Use:   "add <product-id>",
		Short: "Add a product to the cart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := decimal.NewFromString(price)
			if err != nil {
				return fmt.Errorf("invalid price %q: %w", price, err)
			}
			if p.IsNegative() {
				return fmt.Errorf("invalid price %q: must not be negative", price)
			}
			item.ProductID = args[0]
			item.Price = p

			return updateCart(opts, func(c *cart.Cart) error {
				c.Add(item)
				fmt.Fprintf(cmd.OutOrStdout(), "Cart: %d items, total %s\n", c.Count(), c.Total().StringFixed(2))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&item.Name, "name", "", "product name")
	cmd.Flags().StringVar(&price, "price", "0", "unit price")
	cmd.Flags().IntVar(&item.Quantity, "qty", 1, "quantity")

	return cmd
}

func newCartRemoveCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <product-id>",
		Short: "Remove a product from the cart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return updateCart(opts, func(c *cart.Cart) error {
				if !c.Remove(args[0]) {
					return fmt.Errorf("%s: %w", args[0], cart.ErrNotInCart)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
				return nil
			})
		},
	}
}

func newCartSetCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "set <product-id> <quantity>",
		Short: "Set a cart line's quantity (minimum 1)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			qty, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid quantity %q: %w", args[1], err)
			}
			return updateCart(opts, func(c *cart.Cart) error {
				if err := c.SetQuantity(args[0], qty); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cart: %d items, total %s\n", c.Count(), c.Total().StringFixed(2))
				return nil
			})
		},
	}
}

func newCartFavCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "fav <product-id>",
		Short: "Toggle a product as favorite",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return updateCart(opts, func(c *cart.Cart) error {
				state := "removed from"
				if c.ToggleFavorite(args[0]) {
					state = "added to"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s favorites\n", args[0], state)
				return nil
			})
		},
	}
}

func newCartShowCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the cart and favorites",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := cartPath(opts)
			if err != nil {
				return err
			}
			c, err := cart.Load(path)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			tw := newTable(out)
			fmt.Fprintln(tw, "PRODUCT\tNAME\tPRICE\tQTY\tSUBTOTAL\tFAV")
			for _, item := range c.Items {
				fav := ""
				if c.IsFavorite(item.ProductID) {
					fav = "*"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
					item.ProductID, item.Name, item.Price.StringFixed(2), item.Quantity, item.Subtotal().StringFixed(2), fav)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "Total: %s (%d items)\n", c.Total().StringFixed(2), c.Count())
			if len(c.Favorites) > 0 {
				fmt.Fprintf(out, "Favorites: %v\n", c.Favorites)
			}
			return nil
		},
	}
}
