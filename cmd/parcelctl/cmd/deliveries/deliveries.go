package deliveries

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/iliyamo/parcel-marketplace/cmd/parcelctl/internal/client"
	"github.com/iliyamo/parcel-marketplace/internal/model"
)

var provider *client.Provider

// DeliveriesCmd is the parent command for delivery request operations
var DeliveriesCmd = &cobra.Command{
	Use:     "deliveries",
	Aliases: []string{"delivery", "d"},
	Short:   "Manage delivery requests",
	Long: `Customers create and cancel delivery requests; riders accept them and
report progress.  What you can list depends on your role.`,
}

func init() {
	DeliveriesCmd.AddCommand(listCmd)
	DeliveriesCmd.AddCommand(getCmd)
	DeliveriesCmd.AddCommand(createCmd)
	DeliveriesCmd.AddCommand(acceptCmd)
	DeliveriesCmd.AddCommand(statusCmd)
	DeliveriesCmd.AddCommand(cancelCmd)
}

// SetProvider injects the shared session provider.
func SetProvider(p *client.Provider) {
	provider = p
}

func printTable(items []model.DeliveryRequest) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tPICKUP\tDROP-OFF\tITEM\tPRICE\tRIDER")
	for _, d := range items {
		rider := "-"
		if d.HasRider() {
			rider = *d.RiderID
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			d.ID, d.Status, d.PickupLocation, d.DeliveryLocation, d.ItemDescription, price(d.PriceCents), rider)
	}
	w.Flush()
}

func printOne(verb string, d model.DeliveryRequest) {
	pterm.Success.Printf("%s %s: now %s\n", verb, d.ID, d.Status)
}

func price(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}
