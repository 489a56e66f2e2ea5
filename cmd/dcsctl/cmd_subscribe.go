package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/duet3d/dcsd/internal/wire"
)

func newSubscribeCmd() *cobra.Command {
	var patch bool
	var filter []string

	cmd := &cobra.Command{
		Use:   "subscribe",
		Short: "Stream object-model updates until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial(socketPath)
			if err != nil {
				return err
			}
			defer c.Close()

			mode := wire.SubscribeModeFull
			if patch {
				mode = wire.SubscribeModePatch
			}
			opts := &wire.SubscribeOptions{Mode: mode, Filter: filter}

			if _, err := c.handshake("Subscribe", []string{"ObjectModelRead"}, opts, nil); err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			for {
				var update wire.ModelUpdate
				if err := c.dec.Decode(&update); err != nil {
					return err
				}
				var pretty any
				if err := json.Unmarshal(update, &pretty); err != nil {
					return err
				}
				if err := enc.Encode(pretty); err != nil {
					return err
				}
				if err := c.enc.Encode(wire.Ack{Ack: true}); err != nil {
					return err
				}
			}
		},
	}
	cmd.Flags().BoolVar(&patch, "patch", false, "receive JSON merge-patch updates instead of full snapshots")
	cmd.Flags().StringSliceVar(&filter, "filter", nil, "top-level object-model keys to receive (default: all)")
	return cmd
}
