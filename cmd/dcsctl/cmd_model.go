package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newModelCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "model", Short: "Read or lock the shared object model"}
	cmd.AddCommand(newModelGetCmd(), newModelLockCmd(), newModelUnlockCmd())
	return cmd
}

func newModelGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "Print the current object model as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial(socketPath)
			if err != nil {
				return err
			}
			defer c.Close()
			if _, err := c.handshake("Command", []string{"ObjectModelRead"}, nil, nil); err != nil {
				return err
			}
			resp, err := c.command("GetObjectModel", nil)
			if err != nil {
				return err
			}
			if err := responseErr(resp); err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(resp.Result)
		},
	}
}

func newModelLockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lock",
		Short: "Take the object-model lock and hold it until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial(socketPath)
			if err != nil {
				return err
			}
			defer c.Close()
			if _, err := c.handshake("Command", []string{"ObjectModelReadWrite"}, nil, nil); err != nil {
				return err
			}
			resp, err := c.command("LockObjectModel", nil)
			if err != nil {
				return err
			}
			if err := responseErr(resp); err != nil {
				return err
			}
			fmt.Println("lock acquired, press Ctrl-C to release and exit")
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh
			// Closing conn drops the session; the daemon force-releases any
			// lock it held as part of its close hooks.
			return nil
		},
	}
}

func newModelUnlockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unlock",
		Short: "Release the object-model lock held by this connection",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial(socketPath)
			if err != nil {
				return err
			}
			defer c.Close()
			if _, err := c.handshake("Command", []string{"ObjectModelReadWrite"}, nil, nil); err != nil {
				return err
			}
			resp, err := c.command("UnlockObjectModel", nil)
			if err != nil {
				return err
			}
			return responseErr(resp)
		},
	}
}
