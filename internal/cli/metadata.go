package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/plugrelay/plugrelay/client"
	"github.com/plugrelay/plugrelay/protocol"
)

var (
	metadataServer string
	metadataBeta   bool
)

var metadataCmd = &cobra.Command{
	Use:   "metadata <plugin-name>",
	Short: "Show the display metadata of a hosted plugin",
	Args:  cobra.ExactArgs(1),
	RunE:  runMetadata,
}

func init() {
	metadataCmd.Flags().StringVarP(&metadataServer, "server", "s", "", "Update server address (host or host:port)")
	metadataCmd.Flags().BoolVar(&metadataBeta, "beta", false, "Include beta versions")
	rootCmd.AddCommand(metadataCmd)
}

func runMetadata(cmd *cobra.Command, args []string) error {
	addr, err := serverAddr(metadataServer)
	if err != nil {
		return err
	}
	c, err := client.New(addr)
	if err != nil {
		return err
	}

	md, err := c.GetMetadata(args[0], metadataBeta)
	if err != nil {
		return err
	}
	if md.Code == protocol.CodePluginNotFound {
		return fmt.Errorf("server does not host a plugin named %q", args[0])
	}

	out := cmd.OutOrStdout()
	if md.Name != nil {
		fmt.Fprintf(out, "Name:        %s\n", *md.Name)
	}
	if md.Description != nil {
		fmt.Fprintf(out, "Description: %s\n", *md.Description)
	}
	fmt.Fprintf(out, "Images:      %d\n", md.ImageCount)
	return nil
}
