package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"storefront/internal/service/order/infrastructure/sequence"
)

// next-id / show-id 直接操作计数文件，和 order-hub 使用同一把文件锁
func newNextIDCmd(opts *options) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "next-id",
		Short: "Issue the next order id from the sequence file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := sequence.NewFileStore(opts.sequencePath, sequence.WithLockTimeout(timeout))
			if err != nil {
				return err
			}
			id, err := store.NextID(cmd.Context())
			if err != nil {
				return fmt.Errorf("issuing id: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "lock-timeout", sequence.DefaultLockTimeout, "maximum wait for the sequence lock")
	return cmd
}

func newShowIDCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "show-id",
		Short: "Print the last issued order id without issuing a new one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := sequence.NewFileStore(opts.sequencePath)
			if err != nil {
				return err
			}
			id, err := store.Current(cmd.Context())
			if err != nil {
				return fmt.Errorf("reading sequence: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
}
