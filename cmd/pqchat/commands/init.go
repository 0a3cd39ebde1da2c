package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// init: generate a fresh identity and store it encrypted under the passphrase.
func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create your identity keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			fp, err := appCtx.Init(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("identity created for %s\nfingerprint: %s\n", appCtx.User(), fp)
			return nil
		},
	}
}
