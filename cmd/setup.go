package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	cfgpkg "github.com/KaramelBytes/gitlab-search/internal/config"
	"github.com/KaramelBytes/gitlab-search/internal/output"
)

var (
	setupAPIURL      string
	setupIgnoreCert  bool
	setupMaxRequests int
	setupDir         string
	setupConfigFile  string
	setupColor       string
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Store connection options in a configuration file",
	Long: `Writes .gitlab-search-config.json with the given options. Only values that
differ from the defaults are stored; the access token never is.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if setupMaxRequests < 1 {
			return fmt.Errorf("--max-requests must be at least 1")
		}
		return writeSetup(cmd.OutOrStdout(), setupColor, cfgpkg.SetupPath(setupDir, setupConfigFile), cfgpkg.Setup{
			APIURL:      setupAPIURL,
			IgnoreCert:  setupIgnoreCert,
			MaxRequests: setupMaxRequests,
		})
	},
}

func init() {
	rootCmd.AddCommand(setupCmd)
	f := setupCmd.Flags()
	f.StringVar(&setupAPIURL, "api-url", cfgpkg.DefaultAPIURL, "GitLab API base URL")
	f.BoolVar(&setupIgnoreCert, "ignore-cert", false, "do not verify the server certificate")
	f.IntVar(&setupMaxRequests, "max-requests", cfgpkg.DefaultMaxRequests, "concurrent API requests")
	f.StringVar(&setupDir, "dir", ".", "directory to write the configuration file to")
	f.StringVarP(&setupConfigFile, "config", "C", "", "configuration file to write (overrides --dir)")
	f.StringVar(&setupColor, "color", "auto", "colorize output: auto, always or never")
}

func writeSetup(w io.Writer, color, path string, s cfgpkg.Setup) error {
	written, err := cfgpkg.Save(s, path)
	if err != nil {
		return err
	}
	pal := output.NewPalette(color, w)
	fmt.Fprintln(w, pal.Green(fmt.Sprintf("✓ Successfully wrote config to %s, gitlab-search is now ready to be used", written)))
	return nil
}
