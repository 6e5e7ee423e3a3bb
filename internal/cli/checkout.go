package cli

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"storefront/internal/service/order/application"
	"storefront/internal/service/order/interfaces"
)

func newCheckoutCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "checkout productId:quantity...",
		Short:   "Place an order for a basket",
		Example: "  orderctl checkout 7:2 7:1 9:1",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lines, err := parseBasket(args)
			if err != nil {
				return err
			}
			client, err := opts.httpClient()
			if err != nil {
				return err
			}

			var resp interfaces.CheckoutResponse
			err = client.PostJSON(cmd.Context(), "/checkout", interfaces.CheckoutRequest{Lines: lines}, &resp,
				http.StatusCreated, http.StatusConflict)
			if err != nil {
				return fmt.Errorf("checkout failed: %w", err)
			}

			if resp.Receipt == nil {
				fmt.Fprint(cmd.OutOrStdout(), RenderShortages(resp.Shortages))
				return fmt.Errorf("insufficient stock for %d product(s)", len(resp.Shortages))
			}
			fmt.Fprint(cmd.OutOrStdout(), RenderReceipt(resp.Receipt))
			return nil
		},
	}
}

// parseBasket 解析 "productId:quantity" 形式的参数，数量省略时为 1
func parseBasket(args []string) ([]application.BasketLine, error) {
	lines := make([]application.BasketLine, 0, len(args))
	for _, arg := range args {
		idPart, qtyPart, hasQty := strings.Cut(arg, ":")
		id, err := strconv.ParseInt(idPart, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid product id in %q", arg)
		}
		qty := 1
		if hasQty {
			if qty, err = strconv.Atoi(qtyPart); err != nil {
				return nil, fmt.Errorf("invalid quantity in %q", arg)
			}
		}
		lines = append(lines, application.BasketLine{ProductID: id, Quantity: qty})
	}
	return lines, nil
}
