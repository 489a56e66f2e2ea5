package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/duet3d/dcsd/internal/wire"
)

// newInterceptCmd drives an Intercept-mode connection interactively: each
// offered code is printed, and the operator types "ignore", "cancel", or
// "resolve <text>" to answer it (spec §4.4's three verdicts).
func newInterceptCmd() *cobra.Command {
	var stage string
	var channels []string

	cmd := &cobra.Command{
		Use:   "intercept",
		Short: "Interactively approve, replace, or cancel offered codes",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial(socketPath)
			if err != nil {
				return err
			}
			defer c.Close()

			opts := &wire.InterceptOptions{Stage: stage, Channels: channels}
			if _, err := c.handshake("Intercept", []string{"CommandExecution"}, nil, opts); err != nil {
				return err
			}

			stdin := bufio.NewReader(os.Stdin)
			for {
				var offer wire.Code
				if err := c.dec.Decode(&offer); err != nil {
					return err
				}
				fmt.Fprintf(os.Stdout, "offered %s%d on %s at %s: %q\n",
					offer.Type, offer.MajorNumber, offer.Channel, offer.Stage, offer.Content)
				fmt.Fprint(os.Stdout, "verdict [ignore/cancel/resolve <text>]: ")

				line, err := stdin.ReadString('\n')
				if err != nil {
					return err
				}
				verdict := parseVerdict(line)
				if err := c.enc.Encode(verdict); err != nil {
					return err
				}
			}
		},
	}
	cmd.Flags().StringVar(&stage, "stage", "", "only offer codes at this stage (PreCode, PostCode, ExecutedCode)")
	cmd.Flags().StringSliceVar(&channels, "channel", nil, "only offer codes on these channels")
	return cmd
}

func parseVerdict(line string) wire.Verdict {
	line = strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(line, "resolve "):
		return wire.Verdict{Command: wire.VerdictResolve, Result: &wire.CodeResult{Content: strings.TrimPrefix(line, "resolve ")}}
	case line == "cancel":
		return wire.Verdict{Command: wire.VerdictCancel}
	default:
		return wire.Verdict{Command: wire.VerdictIgnore}
	}
}
