package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Clear the stored credential",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := newTokenManager(false)
		if err != nil {
			return err
		}
		if err := mgr.SignOut(); err != nil {
			return fmt.Errorf("failed to clear credential: %w", err)
		}
		fmt.Println("Credential cleared.")
		return nil
	},
}
