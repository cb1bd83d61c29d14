package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/grant-discovery/internal/api"
)

func newServeCmd(rt *runtime) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if port == 0 {
				port = rt.cfg.Server.Port
			}
			a, err := rt.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			srv := api.NewServer(a.Controller, a.Store, rt.cfg.Source.Name, rt.cfg.Auth, rt.logger.Named("api"))
			return srv.Run(cmd.Context(), fmt.Sprintf(":%d", port))
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port (default: server.port)")
	return cmd
}
