package cmd

import (
	"github.com/spf13/cobra"

	"checkin-pipeline/config"
	server2 "checkin-pipeline/server"
)

func server(config *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "start the check-in pipeline server",
		Run: func(cmd *cobra.Command, args []string) {
			server2.RunHttp(config)
		},
	}
}
