package auth

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/iliyamo/parcel-marketplace/internal/gate"
	"github.com/iliyamo/parcel-marketplace/internal/model"
	"github.com/iliyamo/parcel-marketplace/internal/session"
)

var regReq session.RegisterRequest
var regRole string

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account and sign in",
	Long: `Creates an account with the given role and signs in with it.
Roles: customer (default), seller, service_provider, delivery_rider.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if regRole != "" {
			r, err := model.ParseRole(regRole)
			if err != nil {
				return err
			}
			regReq.Role = r
		}
		if err := promptIfEmpty(&regReq.Email, "Email", false); err != nil {
			return err
		}
		if err := promptIfEmpty(&regReq.FirstName, "First name", false); err != nil {
			return err
		}
		if err := promptIfEmpty(&regReq.Password, "Password", true); err != nil {
			return err
		}

		s, err := provider.Open()
		if err != nil {
			return err
		}
		defer s.Close()

		id, err := s.Register(cmd.Context(), regReq)
		if err != nil {
			return describe(err)
		}
		pterm.Success.Printf("Welcome, %s! You are registered as %s.\n", id.DisplayName, id.Role)
		pterm.Info.Printf("Home: %s\n", gate.Landing(id.Role))
		return nil
	},
}

func init() {
	registerCmd.Flags().StringVar(&regReq.Email, "email", "", "Account email")
	registerCmd.Flags().StringVar(&regReq.Password, "password", "", "Account password (prompted when omitted)")
	registerCmd.Flags().StringVar(&regReq.FirstName, "first-name", "", "First name")
	registerCmd.Flags().StringVar(&regReq.LastName, "last-name", "", "Last name")
	registerCmd.Flags().StringVar(&regRole, "role", "", "Account role")
}
