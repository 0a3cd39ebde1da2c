package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// register: publish your public keys to the server directory.
func registerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register",
		Short: "Publish your public keys to the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := appCtx.Register(cmd.Context()); err != nil {
				return err
			}
			fmt.Printf("registered %s with %s\n", appCtx.User(), wire.Config.ServerURL)
			return nil
		},
	}
}
