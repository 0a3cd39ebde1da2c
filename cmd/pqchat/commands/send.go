package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"pqchat/internal/domain"
)

// send <peer> <message>: seal and deliver a single message over the live channel.
func sendCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "send <peer> <message>",
		Short: "Encrypt and send a message to a peer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := appCtx.Send(cmd.Context(), domain.UserID(args[0]), args[1], timeout)
			if err != nil {
				return err
			}
			fmt.Printf("sent (%s)\n", msg.LocalID)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 15*time.Second, "how long to wait for the secure channel")
	return cmd
}
