package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/radiocollartracker/sdr-record/internal/logger"
)

// configCommand prints the validated configuration as YAML
func configCommand(v *viper.Viper, central *logger.CentralLogger) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Long:  "Merge flags, environment and the config file, validate the result and print it as YAML without starting the pipeline.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, ok, err := loadSettings(cmd, v, central)
			if err != nil || !ok {
				return err
			}
			out, err := settings.YAML()
			if err != nil {
				return &exitError{code: ExitFatal, err: err}
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}
