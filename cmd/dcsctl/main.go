// dcsctl – a command-line client for dcsd, exercising every connection
// mode from outside a plugin process.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var socketPath string

func main() {
	root := &cobra.Command{
		Use:   "dcsctl",
		Short: "Talk to a running dcsd daemon",
	}
	root.PersistentFlags().StringVar(&socketPath, "socket", defaultSocket(), "dcsd command socket")

	root.AddCommand(
		newCodeCmd(),
		newSimpleCodeCmd(),
		newSubscribeCmd(),
		newInterceptCmd(),
		newPluginCmd(),
		newModelCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "dcsctl:", err)
		os.Exit(1)
	}
}

func defaultSocket() string {
	if env := os.Getenv("DCSD_ROOT"); env != "" {
		return filepath.Join(env, "dcs.sock")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/dcs.sock"
	}
	return filepath.Join(home, ".dcsd", "dcs.sock")
}
