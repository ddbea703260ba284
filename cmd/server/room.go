package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/umar/agentmesh/internal/config"
	"github.com/umar/agentmesh/internal/service"
)

func newRoomCmd() *cobra.Command {
	room := &cobra.Command{
		Use:   "room",
		Short: "Manage rooms",
	}
	room.AddCommand(&cobra.Command{
		Use:   "create <name>",
		Short: "Create a room and print its api key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			setupLogger(cfg, cmd.ErrOrStderr())

			st, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to open store: %w", err)
			}
			defer st.Close()

			created, err := service.New(st).CreateRoom(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "room_id: %s\n", created.ID)
			fmt.Fprintf(out, "name:    %s\n", created.Name)
			fmt.Fprintf(out, "api_key: %s\n", created.APIKey)
			return nil
		},
	})
	return room
}
