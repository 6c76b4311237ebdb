// env.go - environment variable configuration for the recorder
package conf

import (
	"strings"

	"github.com/spf13/viper"
)

// bindEnv maps every option onto SDR_RECORD_<KEY>, e.g. SDR_RECORD_CENTER_FREQ
func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}
