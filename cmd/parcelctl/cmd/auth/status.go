package auth

import (
	"errors"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/iliyamo/parcel-marketplace/internal/gate"
	"github.com/iliyamo/parcel-marketplace/internal/session"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Display the current session",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := provider.Open()
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.Restore(cmd.Context()); err != nil {
			return err
		}
		d, err := gate.New(s.Manager).Await(cmd.Context())
		if err != nil {
			return err
		}
		st := s.State()
		if d.Outcome != gate.Allow {
			if errors.Is(st.LastError, session.ErrSessionExpired) {
				pterm.Warning.Println("Your session expired. Sign in again.")
			} else {
				pterm.Info.Println("Not signed in")
			}
			return nil
		}

		pterm.DefaultSection.Println("Session")
		_ = pterm.DefaultTable.WithData(pterm.TableData{
			{"Name", st.Identity.DisplayName},
			{"Email", st.Identity.Email},
			{"Role", string(st.Identity.Role)},
			{"Home", gate.Landing(st.Identity.Role)},
			{"Next refresh", st.RefreshAt.Local().Format(time.RFC1123)},
		}).Render()
		return nil
	},
}
