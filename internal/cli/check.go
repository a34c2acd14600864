package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/plugrelay/plugrelay/client"
	"github.com/plugrelay/plugrelay/internal/config"
)

var (
	checkServer string
	checkBeta   bool
	checkYes    bool
	checkDest   string
)

var checkCmd = &cobra.Command{
	Use:   "check <plugin-name> <current-version>",
	Short: "Check a server for a plugin update and install it",
	Long: `Ask an update server whether a newer version of a plugin is hosted and, after
confirmation, download and install its files. With --dest the absolute install
locations are re-rooted under that directory; without it files are written to
their literal locations.`,
	Args: cobra.ExactArgs(2),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVarP(&checkServer, "server", "s", "", "Update server address (host or host:port)")
	checkCmd.Flags().BoolVar(&checkBeta, "beta", false, "Accept beta versions")
	checkCmd.Flags().BoolVarP(&checkYes, "yes", "y", false, "Install without confirmation")
	checkCmd.Flags().StringVar(&checkDest, "dest", "", "Install root (default: literal install locations)")
	rootCmd.AddCommand(checkCmd)
}

// serverAddr resolves the server address from the given flag value or the
// config file.
func serverAddr(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if v := config.Get(config.KeyServer); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("no server given: pass --server or set the %q config key", config.KeyServer)
}

func runCheck(cmd *cobra.Command, args []string) error {
	addr, err := serverAddr(checkServer)
	if err != nil {
		return err
	}
	c, err := client.New(addr)
	if err != nil {
		return err
	}

	var inst client.Installer = client.DirInstaller{Root: checkDest}
	if !checkYes {
		inst = &client.PromptInstaller{
			In:       os.Stdin,
			Out:      cmd.OutOrStdout(),
			Delegate: client.DirInstaller{Root: checkDest},
		}
	}

	res, err := c.CheckUpdate(args[0], args[1], checkBeta, inst)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch res.State {
	case client.StateNoUpdate:
		fmt.Fprintf(out, "%s %s is up to date.\n", args[0], args[1])
	case client.StatePluginNotFound:
		fmt.Fprintf(out, "Server does not host a plugin named %q.\n", args[0])
	case client.StateInvalidRequest:
		return fmt.Errorf("server rejected the request; is %q a valid semver version?", args[1])
	case client.StateDeclined:
		fmt.Fprintln(out, "Update declined.")
	case client.StateSucceeded:
		fmt.Fprintf(out, "Updated %s to %s (%d files).\n",
			res.Offer.PluginName, res.Offer.NewPluginVersion, len(res.Offer.RequiredFiles))
	default:
		return fmt.Errorf("update ended in state %s", res.State)
	}
	return nil
}
