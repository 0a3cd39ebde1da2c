package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"pqchat/internal/domain"
)

// history <peer>: merge server history into the local log and print it.
func historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <peer>",
		Short: "Show the conversation with a peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := appCtx.History(cmd.Context(), domain.UserID(args[0]))
			if err != nil {
				return err
			}
			if res.RemoteErr != nil {
				fmt.Printf("(server unavailable, showing local history: %v)\n", res.RemoteErr)
			}
			for _, m := range res.Timeline {
				printMessage(m)
			}
			return nil
		},
	}
}

func printMessage(m domain.Message) {
	mark := " "
	switch m.SignatureVerified {
	case domain.VerificationValid:
		mark = "✓"
	case domain.VerificationInvalid:
		mark = "!"
	}
	fmt.Printf("[%s] %s %s: %s\n", m.Timestamp.Local().Format("2006-01-02 15:04:05"), mark, m.SenderID, m.Plaintext)
}
