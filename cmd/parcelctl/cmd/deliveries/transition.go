package deliveries

import (
	"github.com/spf13/cobra"

	"github.com/iliyamo/parcel-marketplace/internal/model"
)

var acceptCmd = &cobra.Command{
	Use:   "accept <id>",
	Short: "Take a pending request (riders)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := provider.Require(cmd.Context(), model.RoleDeliveryRider, model.RoleAdmin)
		if err != nil {
			return err
		}
		defer s.Close()

		d, err := provider.Deliveries(s).Accept(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printOne("Accepted", d)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <id> <in_transit|delivered>",
	Short: "Report progress on an accepted request (assigned rider)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := model.ParseStatus(args[1])
		if err != nil {
			return err
		}
		s, err := provider.Require(cmd.Context(), model.RoleDeliveryRider, model.RoleAdmin)
		if err != nil {
			return err
		}
		defer s.Close()

		d, err := provider.Deliveries(s).UpdateStatus(cmd.Context(), args[0], target)
		if err != nil {
			return err
		}
		printOne("Updated", d)
		return nil
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Cancel a pending request (sender or admin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := provider.Require(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		d, err := provider.Deliveries(s).Cancel(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printOne("Cancelled", d)
		return nil
	},
}
