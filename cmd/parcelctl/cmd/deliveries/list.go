package deliveries

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/iliyamo/parcel-marketplace/internal/delivery"
	"github.com/iliyamo/parcel-marketplace/internal/model"
)

var (
	listQuery  string
	listStatus string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the delivery requests you can see",
	Long: `Customers see their own requests, riders see open requests plus the ones
assigned to them, admins see everything.  Newest first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		f := delivery.ListFilter{Query: listQuery}
		if listStatus != "" {
			st, err := model.ParseStatus(listStatus)
			if err != nil {
				return err
			}
			f.Status = st
		}

		s, err := provider.Require(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		items, err := provider.Deliveries(s).List(cmd.Context(), f)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			pterm.Info.Println("No delivery requests")
			return nil
		}
		printTable(items)
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one delivery request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := provider.Require(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		d, err := provider.Deliveries(s).Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printTable([]model.DeliveryRequest{d})
		return nil
	},
}

func init() {
	listCmd.Flags().StringVarP(&listQuery, "query", "q", "", "Case-insensitive text search over locations, item and receiver")
	listCmd.Flags().StringVar(&listStatus, "status", "", "Only requests in this status")
}
