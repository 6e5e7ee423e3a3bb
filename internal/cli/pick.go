package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"storefront/internal/service/order/interfaces"
)

func newPickCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "pick orderId [state]",
		Short: "Move an order to its next state, or to the given state",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid order id %q", args[0])
			}
			var req interfaces.TransitionRequest
			if len(args) == 2 {
				req.State = args[1]
			}

			client, err := opts.httpClient()
			if err != nil {
				return err
			}
			var ack interfaces.ServerMessage
			path := "/orders/" + strconv.FormatInt(id, 10) + "/transition"
			if err := client.PostJSON(cmd.Context(), path, req, &ack); err != nil {
				return fmt.Errorf("transition rejected: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "order %d is now %s\n", ack.OrderID, stateStyle(ack.State).Render(ack.State.String()))
			return nil
		},
	}
}
