package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Load the configuration files and FUZZSYNC_* environment overrides,
validate the result and print it as YAML.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		data, err := cfg.Marshal()
		if err != nil {
			return fmt.Errorf("marshaling config: %w", err)
		}

		fmt.Print(string(data))

		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
