package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/AltairaLabs/livebridge/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and validate BridgeConfig manifests",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Validate a manifest against the schema and semantic checks",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigValidate,
}

var configDefaultsCmd = &cobra.Command{
	Use:   "print-defaults",
	Short: "Print the default manifest as YAML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		out, err := config.Default().YAML()
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

func init() {
	configCmd.AddCommand(configValidateCmd, configDefaultsCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	result, err := config.ValidateWithSchema(data)
	if err != nil {
		return err
	}
	if !result.Valid {
		for _, e := range result.Errors {
			printf(cmd, "  - %s\n", e.Error())
		}
		return fmt.Errorf("%s failed schema validation", filepath.Base(path))
	}

	if _, err := config.Parse(data); err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(path), err)
	}

	printf(cmd, "%s is valid\n", filepath.Base(path))
	return nil
}
