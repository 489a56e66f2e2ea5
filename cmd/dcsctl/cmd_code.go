package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var codeChannel string

func newCodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "code <gcode>",
		Short: "Submit a code and print the daemon's formatted reply",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCode(cmd, "Code", args[0])
		},
	}
	cmd.Flags().StringVar(&codeChannel, "channel", "", "execution channel (default: the source's default channel)")
	return cmd
}

func newSimpleCodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simple-code <gcode>",
		Short: "Submit a code and print only its plain-text reply",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCode(cmd, "SimpleCode", args[0])
		},
	}
	cmd.Flags().StringVar(&codeChannel, "channel", "", "execution channel (default: the source's default channel)")
	return cmd
}

func runCode(cmd *cobra.Command, kind, code string) error {
	c, err := dial(socketPath)
	if err != nil {
		return err
	}
	defer c.Close()

	if _, err := c.handshake("Command", []string{"CommandExecution"}, nil, nil); err != nil {
		return err
	}

	resp, err := c.command(kind, map[string]string{"channel": codeChannel, "code": code})
	if err != nil {
		return err
	}
	if err := responseErr(resp); err != nil {
		return err
	}
	fmt.Println(resp.Result)
	return nil
}
