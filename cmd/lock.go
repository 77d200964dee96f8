package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	lockReason string
	lockBy     string
)

var lockCmd = &cobra.Command{
	Use:   "lock <ticket-key>",
	Short: "Lock a ticket's current record against reprocessing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if lockBy == "" {
			lockBy = os.Getenv("USER")
		}
		if err := st.Lock(ctx, args[0], lockReason, lockBy); err != nil {
			return err
		}
		fmt.Printf("locked %s\n", args[0])
		return nil
	},
}

var unlockCmd = &cobra.Command{
	Use:   "unlock <ticket-key>",
	Short: "Unlock a ticket's current record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Unlock(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("unlocked %s\n", args[0])
		return nil
	},
}

func init() {
	lockCmd.Flags().StringVar(&lockReason, "reason", "", "why the record is locked (required)")
	lockCmd.Flags().StringVar(&lockBy, "by", "", "who is locking (defaults to $USER)")
	_ = lockCmd.MarkFlagRequired("reason")
	rootCmd.AddCommand(lockCmd, unlockCmd)
}
