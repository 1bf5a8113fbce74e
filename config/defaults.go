package config

import (
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	// DefaultCounterFile holds the persisted build number.
	DefaultCounterFile = "build_number.txt"

	// DefaultDefineName is the compile-time define carrying the build number.
	DefaultDefineName = "BUILD_NUMBER"

	// DefaultDataDir is the directory packed into the filesystem image.
	DefaultDataDir = "data"

	// DefaultMarkerFile records the last filesystem image upload.
	DefaultMarkerFile = ".pio/data_upload_time"

	// DefaultUploadFSCommand uploads the filesystem image.
	DefaultUploadFSCommand = "pio run --target uploadfs"

	// DefaultBuildCommand builds the firmware.
	DefaultBuildCommand = "pio run"

	// DefaultUploadCommand flashes the firmware.
	DefaultUploadCommand = "pio run --target upload"

	// DefaultWatchDebounce is how long the watcher waits for changes to settle.
	DefaultWatchDebounce = 500 * time.Millisecond
)

// setDefaults configures default values in the viper instance.
func setDefaults(viperInstance *viper.Viper) {
	viperInstance.SetDefault("counter_file", DefaultCounterFile)
	viperInstance.SetDefault("define_name", DefaultDefineName)
	viperInstance.SetDefault("data_dir", DefaultDataDir)
	viperInstance.SetDefault("marker_file", DefaultMarkerFile)
	viperInstance.SetDefault("uploadfs_command", DefaultUploadFSCommand)
	viperInstance.SetDefault("steps", map[string]any{
		"build":  DefaultBuildCommand,
		"upload": DefaultUploadCommand,
	})
	viperInstance.SetDefault("data_ignore", []string{})
	viperInstance.SetDefault("watch.debounce", DefaultWatchDebounce)
	viperInstance.SetDefault("verbose", false)
	viperInstance.SetDefault("debug", false)
	viperInstance.SetDefault("dryrun", false)
}
