package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPluginCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "plugin", Short: "Manage installed plugins"}
	cmd.AddCommand(
		newPluginInstallCmd(),
		newPluginStartCmd(),
		newPluginStopCmd(),
		newPluginUninstallCmd(),
		newPluginLogsCmd(),
	)
	return cmd
}

func pluginAction(name string, payload any) error {
	c, err := dial(socketPath)
	if err != nil {
		return err
	}
	defer c.Close()

	if _, err := c.handshake("Command", []string{"ManagePlugins", "FileSystemAccess"}, nil, nil); err != nil {
		return err
	}
	resp, err := c.command(name, payload)
	if err != nil {
		return err
	}
	if err := responseErr(resp); err != nil {
		return err
	}
	if resp.Result != nil {
		fmt.Println(resp.Result)
	}
	return nil
}

func newPluginInstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install <dir>",
		Short: "Install a plugin from an unpacked directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return pluginAction("InstallPlugin", map[string]string{"dir": args[0]})
		},
	}
}

func newPluginStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start <plugin-id>",
		Short: "Start an installed plugin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return pluginAction("StartPlugin", map[string]string{"pluginId": args[0]})
		},
	}
}

func newPluginStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop <plugin-id>",
		Short: "Stop a running plugin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return pluginAction("StopPlugin", map[string]string{"pluginId": args[0]})
		},
	}
}

func newPluginLogsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logs <plugin-id>",
		Short: "Print a running plugin's buffered PTY output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial(socketPath)
			if err != nil {
				return err
			}
			defer c.Close()
			if _, err := c.handshake("Command", []string{"ManagePlugins"}, nil, nil); err != nil {
				return err
			}
			resp, err := c.command("GetPluginLog", map[string]string{"pluginId": args[0]})
			if err != nil {
				return err
			}
			if err := responseErr(resp); err != nil {
				return err
			}
			fmt.Print(resp.Result)
			return nil
		},
	}
}

func newPluginUninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall <plugin-id>",
		Short: "Stop and remove an installed plugin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return pluginAction("UninstallPlugin", map[string]string{"pluginId": args[0]})
		},
	}
}
