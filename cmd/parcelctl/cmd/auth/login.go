package auth

import (
	"errors"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/iliyamo/parcel-marketplace/internal/gate"
	"github.com/iliyamo/parcel-marketplace/internal/session"
)

var (
	loginEmail    string
	loginPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with email and password",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := promptIfEmpty(&loginEmail, "Email", false); err != nil {
			return err
		}
		if err := promptIfEmpty(&loginPassword, "Password", true); err != nil {
			return err
		}

		s, err := provider.Open()
		if err != nil {
			return err
		}
		defer s.Close()

		id, err := s.Login(cmd.Context(), loginEmail, loginPassword)
		if err != nil {
			return describe(err)
		}
		pterm.Success.Printf("Signed in as %s (%s)\n", id.DisplayName, id.Role)
		pterm.Info.Printf("Home: %s\n", gate.Landing(id.Role))
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "Account email")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "Account password (prompted when omitted)")
}

// describe turns session errors into the message shown to the user.
func describe(err error) error {
	var authErr *session.AuthenticationError
	if errors.As(err, &authErr) {
		return errors.New(authErr.Message)
	}
	var netErr *session.NetworkError
	if errors.As(err, &netErr) {
		return fmt.Errorf("could not reach the server: %w", netErr.Err)
	}
	return err
}
