package main

import (
	"log"

	"github.com/absmach/splitfed/cli"
	"github.com/absmach/splitfed/pkg/sdk"
	"github.com/absmach/splitfed/splitfedd"
	"github.com/spf13/cobra"
)

var (
	coordinatorURL  = "http://localhost:7070"
	tlsVerification = false
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "splitfedd",
		Short: "Split learning daemon",
		Long:  `splitfedd runs split learning coordinators and peers and inspects running sessions.`,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			s := sdk.NewSDK(sdk.Config{
				CoordinatorURL:  coordinatorURL,
				TLSVerification: tlsVerification,
			})
			cli.SetSDK(s)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&coordinatorURL, "coordinator-url", "u", coordinatorURL, "Coordinator HTTP API URL")
	rootCmd.PersistentFlags().BoolVar(&tlsVerification, "tls-verification", tlsVerification, "Verify the coordinator's TLS certificate")

	rootCmd.AddCommand(
		splitfedd.NewCoordinatorCmd(),
		splitfedd.NewPeerCmd(),
		cli.NewStatusCmd(),
		cli.NewHealthCmd(),
		cli.NewRoundsCmd(),
		cli.NewConfigCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
