package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

var rootCmd = &cobra.Command{
	Use:   "chfs",
	Short: "chfs file server",
	Long:  `chfs is a headless file server exposing a JSON HTTP API and a WebDAV adapter over a set of configured shares.`,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./chfs.yaml)")
	rootCmd.PersistentFlags().String("data-dir", "data", "directory for dynamic state (users.json, shares.json, direct transfers)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	viper.BindPFlag("data_dir", rootCmd.PersistentFlags().Lookup("data-dir"))
	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	viper.SetEnvPrefix("CHFS")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func initConfig() {
	if cfgFile == "" {
		cfgFile = "chfs.yaml"
	}
	if _, err := os.Stat(cfgFile); err == nil {
		fmt.Fprintln(os.Stderr, "using config file:", cfgFile)
	}
}

func configPath() string {
	if cfgFile == "" {
		return "chfs.yaml"
	}
	return cfgFile
}

func dataDirPath() string {
	return viper.GetString("data_dir")
}
