// conf/defaults.go default values for settings
package conf

import "github.com/spf13/viper"

// setDefaultConfig sets default values for every option. Required options
// default to values that fail validation so a missing flag is reported.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("run", 0)
	v.SetDefault("gain", -1.0)
	v.SetDefault("sampling_freq", 0)
	v.SetDefault("center_freq", 0)
	v.SetDefault("output", "")
	v.SetDefault("verbose", DefaultVerbosity)

	v.SetDefault("test_config", false)
	v.SetDefault("test_data", "")

	v.SetDefault("frequencies", []int64{})
	v.SetDefault("ping_width_ms", 36)
	v.SetDefault("ping_min_snr", 4.0)
	v.SetDefault("ping_max_len_mult", 1.5)
	v.SetDefault("ping_min_len_mult", 0.75)

	v.SetDefault("gps_target", "")
	v.SetDefault("gps_mode", false)

	v.SetDefault("buffer_len", 65536)
	v.SetDefault("metrics_listen", "")
	v.SetDefault("log_file", "")
}
