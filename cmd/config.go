package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	cfgpkg "github.com/KaramelBytes/gitlab-search/internal/config"
)

var showConfigFile string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect gitlab-search configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := cfgpkg.Load(showConfigFile)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if cfg.Path != "" {
			fmt.Fprintf(out, "config_file: %s\n", cfg.Path)
		} else {
			fmt.Fprintln(out, "config_file: (none, using defaults)")
		}
		fmt.Fprintf(out, "api-url: %s\n", cfg.APIURL)
		fmt.Fprintf(out, "ignore-cert: %t\n", cfg.IgnoreCert)
		fmt.Fprintf(out, "max-requests: %d\n", cfg.MaxRequests)
		fmt.Fprintf(out, "http-timeout-sec: %d\n", cfg.HTTPTimeoutSec)
		fmt.Fprintf(out, "retry-max-attempts: %d\n", cfg.RetryMaxAttempts)
		fmt.Fprintf(out, "retry-base-delay-ms: %d\n", cfg.RetryBaseDelayMs)
		fmt.Fprintf(out, "retry-max-delay-ms: %d\n", cfg.RetryMaxDelayMs)
		fmt.Fprintf(out, "cache: %s\n", cfg.Cache)
		if cfg.Cache != "none" {
			fmt.Fprintf(out, "cache-ttl-sec: %d\n", cfg.CacheTTLSec)
		}
		switch cfg.Cache {
		case "sqlite":
			fmt.Fprintf(out, "cache-path: %s\n", cfg.CachePath)
		case "redis":
			fmt.Fprintf(out, "redis-addr: %s\n", cfg.RedisAddr)
			fmt.Fprintf(out, "redis-password: %s\n", mask(cfg.RedisPassword))
			fmt.Fprintf(out, "redis-db: %d\n", cfg.RedisDB)
		}
		if tok, err := cfgpkg.ResolveToken("", ""); err == nil {
			fmt.Fprintf(out, "token: %s\n", mask(tok))
		} else {
			fmt.Fprintf(out, "token: (not set, export %s)\n", cfgpkg.TokenEnv)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configShowCmd.Flags().StringVarP(&showConfigFile, "config", "C", "", "configuration file to read")
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 6 {
		return "******"
	}
	return s[:3] + "****" + s[len(s)-3:]
}
