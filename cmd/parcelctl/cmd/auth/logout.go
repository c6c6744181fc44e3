package auth

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the stored session",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := provider.Open()
		if err != nil {
			return err
		}
		defer s.Close()

		// Restore first so the server is told which credential to revoke.
		if err := s.Restore(cmd.Context()); err != nil {
			pterm.Warning.Printf("could not read stored session: %v\n", err)
		}
		s.Logout(cmd.Context())
		pterm.Success.Println("Signed out")
		return nil
	},
}
