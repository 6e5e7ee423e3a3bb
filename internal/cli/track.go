package cli

import (
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"storefront/internal/service/order/interfaces"
)

const clearScreen = "\033[H\033[2J"

func newTrackCmd(opts *options) *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "track",
		Short: "Show the live order board",
		Long:  "Connects to the order hub as a tracker and redraws the board on every snapshot.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			wsURL, err := opts.websocketURL(interfaces.RoleTracker)
			if err != nil {
				return err
			}
			conn, _, err := websocket.DefaultDialer.DialContext(cmd.Context(), wsURL, nil)
			if err != nil {
				return fmt.Errorf("connecting to %s: %w", wsURL, err)
			}
			defer conn.Close()

			// ctx 取消时关闭连接，让 ReadJSON 返回
			stop := make(chan struct{})
			defer close(stop)
			go func() {
				select {
				case <-cmd.Context().Done():
					conn.Close()
				case <-stop:
				}
			}()

			var (
				last uint64
				seen bool
			)
			for {
				var msg interfaces.ServerMessage
				if err := conn.ReadJSON(&msg); err != nil {
					if cmd.Context().Err() != nil {
						return nil
					}
					return fmt.Errorf("connection lost: %w", err)
				}
				// 快照可能被合并，但不会乱序；保险起见丢弃旧版本
				if msg.Type != interfaces.MsgSnapshot || (seen && msg.Version <= last) {
					continue
				}
				last, seen = msg.Version, true

				if !once {
					fmt.Fprint(cmd.OutOrStdout(), clearScreen)
				}
				fmt.Fprint(cmd.OutOrStdout(), RenderBoard(msg.Version, msg.States))
				if once {
					return nil
				}
			}
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "print the current board and exit")
	return cmd
}
