package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/iliyamo/parcel-marketplace/cmd/parcelctl/cmd/auth"
	"github.com/iliyamo/parcel-marketplace/cmd/parcelctl/cmd/deliveries"
	"github.com/iliyamo/parcel-marketplace/cmd/parcelctl/internal/client"
	"github.com/iliyamo/parcel-marketplace/internal/session"
)

var provider = &client.Provider{}

var rootCmd = &cobra.Command{
	Use:   "parcelctl",
	Short: "Parcel marketplace CLI",
	Long: `parcelctl signs in to the parcel marketplace and manages delivery requests.
The session is kept between runs and refreshed before it expires.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if v := os.Getenv("PARCEL_SERVER"); v != "" && !cmd.Flags().Changed("server") {
			provider.ServerURL = v
		}
		auth.SetProvider(provider)
		deliveries.SetProvider(provider)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		provider.Close()
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&provider.ServerURL, "server", "http://localhost:8080", "Marketplace API server URL (also PARCEL_SERVER)")
	rootCmd.PersistentFlags().StringVar(&provider.SessionDir, "session-dir", "", "Directory for the session file (default ~/.parcel)")
	rootCmd.PersistentFlags().StringVar(&provider.StoreKind, "session-store", client.StoreFile, "Where the session is kept: file or redis")
	rootCmd.PersistentFlags().DurationVar(&provider.Timeout, "timeout", session.DefaultTimeout, "Per-request timeout")
	rootCmd.AddCommand(auth.AuthCmd)
	rootCmd.AddCommand(deliveries.DeliveriesCmd)
}
