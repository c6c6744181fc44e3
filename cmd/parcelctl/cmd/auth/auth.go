package auth

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/iliyamo/parcel-marketplace/cmd/parcelctl/internal/client"
)

var provider *client.Provider

// AuthCmd is the parent command for session operations
var AuthCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage your session",
	Long:  `Commands for signing in, registering, signing out and checking the current session.`,
}

func init() {
	AuthCmd.AddCommand(loginCmd)
	AuthCmd.AddCommand(registerCmd)
	AuthCmd.AddCommand(logoutCmd)
	AuthCmd.AddCommand(statusCmd)
}

// SetProvider injects the shared session provider.
func SetProvider(p *client.Provider) {
	provider = p
}

// promptIfEmpty asks for a value on the terminal when the flag was not given.
func promptIfEmpty(v *string, label string, secret bool) error {
	if *v != "" {
		return nil
	}
	in := pterm.DefaultInteractiveTextInput
	if secret {
		in = *in.WithMask("*")
	}
	got, err := in.Show(label)
	if err != nil {
		return err
	}
	*v = got
	return nil
}
