package deliveries

import (
	"github.com/spf13/cobra"

	"github.com/iliyamo/parcel-marketplace/internal/delivery"
	"github.com/iliyamo/parcel-marketplace/internal/model"
)

var newReq delivery.NewRequest

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Open a new delivery request (customers)",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := provider.Require(cmd.Context(), model.RoleCustomer)
		if err != nil {
			return err
		}
		defer s.Close()

		d, err := provider.Deliveries(s).Create(cmd.Context(), newReq)
		if err != nil {
			return err
		}
		printOne("Created", d)
		return nil
	},
}

func init() {
	f := createCmd.Flags()
	f.StringVar(&newReq.PickupLocation, "pickup", "", "Pickup address")
	f.StringVar(&newReq.DeliveryLocation, "dropoff", "", "Delivery address")
	f.StringVar(&newReq.ItemDescription, "item", "", "What is being delivered")
	f.StringVar(&newReq.ReceiverName, "receiver", "", "Receiver name")
	f.StringVar(&newReq.ReceiverPhone, "receiver-phone", "", "Receiver phone")
	f.StringVar(&newReq.Notes, "notes", "", "Instructions for the rider")
	f.Int64Var(&newReq.PriceCents, "price-cents", 0, "Offered price in cents")
	_ = createCmd.MarkFlagRequired("pickup")
	_ = createCmd.MarkFlagRequired("dropoff")
	_ = createCmd.MarkFlagRequired("item")
}
