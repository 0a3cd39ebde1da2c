package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"pqchat/internal/domain"
)

// fingerprint [peer]: print your fingerprint, or a peer's as published.
func fingerprintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint [peer]",
		Short: "Show your identity fingerprint, or a peer's",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				fp, err := appCtx.PeerFingerprint(cmd.Context(), domain.UserID(args[0]))
				if err != nil {
					return err
				}
				fmt.Printf("%s: %s\n", args[0], fp)
				return nil
			}
			fp, err := appCtx.Fingerprint(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println(fp)
			return nil
		},
	}
}
