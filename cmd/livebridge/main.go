// Command livebridge relays browser realtime sessions to the Gemini Live API.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/AltairaLabs/livebridge/runtime/logger"
	"github.com/AltairaLabs/livebridge/runtime/version"
)

const envPrefix = "LIVEBRIDGE"

var rootCmd = &cobra.Command{
	Use:           "livebridge",
	Short:         "Realtime websocket relay for the Gemini Live API",
	Version:       version.GetVersion(),
	SilenceUsage:  true,
	SilenceErrors: false,
	Long: `livebridge accepts browser websocket connections, opens one Gemini Live
session per connection and relays audio and screen frames upstream and model
text and audio back to the browser.`,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if format := viper.GetString("log_format"); format != "" {
			if err := logger.Configure(&logger.LoggingConfigSpec{Format: format}); err != nil {
				return err
			}
		}
		if viper.GetBool("verbose") {
			logger.SetVerbose(true)
		}
		return nil
	},
}

func init() {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	pf := rootCmd.PersistentFlags()
	pf.StringP("config", "c", "", "Path to a BridgeConfig manifest")
	pf.BoolP("verbose", "v", false, "Enable debug logging")
	pf.String("log-format", "", "Log format: text or json")
	_ = viper.BindPFlag("config", pf.Lookup("config"))
	_ = viper.BindPFlag("verbose", pf.Lookup("verbose"))
	_ = viper.BindPFlag("log_format", pf.Lookup("log-format"))
}

// Execute runs the root command.
func Execute() {
	rootCmd.SetVersionTemplate(version.GetVersionInfo() + "\n")
	if err := rootCmd.Execute(); err != nil {
		// Error already printed by cobra
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// printf writes to the command's output stream.
func printf(cmd *cobra.Command, format string, args ...any) {
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
