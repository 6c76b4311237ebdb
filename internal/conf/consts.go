// conf/consts.go hard coded constants
package conf

const (
	MetaPrefix     = "META_"     // run metadata file prefix
	LocalizePrefix = "LOCALIZE_" // ping and estimate log prefix
	RawDataPrefix  = "RAW_DATA_" // recorded IQ file prefix read in test mode
	RunNumDigits   = 6           // zero padding of the run identifier in file names

	DefaultVerbosity = 4 // LOG_WARNING

	EnvPrefix = "SDR_RECORD"
)
