package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/plugrelay/plugrelay/client"
	"github.com/plugrelay/plugrelay/protocol"
)

var (
	infoServer string
	infoBeta   bool
)

var infoCmd = &cobra.Command{
	Use:   "info <plugin-name> <current-version>",
	Short: "Show what an update would download, without installing",
	Args:  cobra.ExactArgs(2),
	RunE:  runInfo,
}

func init() {
	infoCmd.Flags().StringVarP(&infoServer, "server", "s", "", "Update server address (host or host:port)")
	infoCmd.Flags().BoolVar(&infoBeta, "beta", false, "Accept beta versions")
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	addr, err := serverAddr(infoServer)
	if err != nil {
		return err
	}
	c, err := client.New(addr)
	if err != nil {
		return err
	}

	offer, err := c.GetUpdateInfo(args[0], args[1], infoBeta)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch offer.Code {
	case protocol.CodeNoUpdate:
		fmt.Fprintf(out, "%s %s is up to date.\n", args[0], args[1])
	case protocol.CodePluginNotFound:
		fmt.Fprintf(out, "Server does not host a plugin named %q.\n", args[0])
	case protocol.CodeInvalidRequest:
		return fmt.Errorf("server rejected the request; is %q a valid semver version?", args[1])
	case protocol.CodeUpdate:
		fmt.Fprintf(out, "Update available: %s %s\n", offer.PluginName, offer.NewPluginVersion)
		var total uint64
		for _, f := range offer.RequiredFiles {
			path, _ := f.InstallLocation.Path()
			fmt.Fprintf(out, "  %10d  %s\n", f.Size, path)
			total += f.Size
		}
		fmt.Fprintf(out, "%d files, %d bytes total\n", len(offer.RequiredFiles), total)
	default:
		return fmt.Errorf("unexpected response code %q", offer.Code)
	}
	return nil
}
