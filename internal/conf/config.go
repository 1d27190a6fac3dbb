// conf/config.go
package conf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// Settings holds the full engine configuration tree.
type Settings struct {
	Debug bool // true to enable debug mode

	Main struct {
		Name string // node name, used to identify the analysis host in logs
		Log  LogConfig
	}

	Engine struct {
		MaxSessions     int     // cap on concurrently open sessions
		WorkerThreads   int     // pipeline consumer threads, 0 = auto from cpuspec
		MinFeatureFrames int    // frames required before a score is trusted
		FinalizeTimeoutMs int   // hard cap on deferred DTW during finalize
	}

	Pipeline struct {
		RingCapacity    int // chunks per session ring, power of two
		MaxDrainPerCall int // chunks drained per consumer invocation
		BufferPoolSize  int // pre-allocated frame buffers per frame size, shared by sessions
	}

	VAD struct {
		Enabled         bool
		EnergyThreshold float64 // mean-square threshold on mono float samples
		MinVoicedMs     int
		HangoverMs      int
	}

	MFCC struct {
		Coefficients int     // cepstral coefficients kept after DCT
		MelFilters   int     // triangular filters in the filterbank
		LowFreqHz    float64 // filterbank lower edge
		HighFreqHz   float64 // filterbank upper edge, 0 = Nyquist
		PreEmphasis  float64
	}

	Analyzers struct {
		Pitch struct {
			Enabled   bool
			MinFreqHz float64
			MaxFreqHz float64
			Threshold float64 // YIN absolute threshold
		}
		Harmonic struct {
			Enabled    bool
			FFTSize    int
			OverlapPct float64
		}
		Cadence struct {
			Enabled    bool
			MinTempoBPM float64
			MaxTempoBPM float64
		}
	}

	Similarity struct {
		Gamma          float64 // distance-to-similarity exponent
		BandMin        int     // Sakoe-Chiba minimum half-width
		BandFraction   float64 // half-width fraction of the longer sequence
		Weights        ComponentWeights
		ConfidenceFloor float64 // components below this confidence carry no weight
	}

	Cache struct {
		Path         string // directory holding .mfc feature files
		MaxRecords   int    // LRU cap on in-memory master records
		NegativeTTLs int    // seconds a failed lookup is remembered
	}

	Capture struct {
		Device     string // capture device name, reported in errors; the system default device is always opened
		SampleRate int
	}

	Output struct {
		MetricsEnabled bool
		MetricsAddr    string
	}
}

// ComponentWeights are the fusion blend weights.
type ComponentWeights struct {
	MFCC     float64
	Pitch    float64
	Harmonic float64
	Cadence  float64
	Energy   float64
}

// LogConfig mirrors the logging package configuration.
type LogConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Level      string
}

var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Load reads the configuration from disk, applying defaults and environment
// overrides, and returns the populated Settings.
func Load() (*Settings, error) {
	var err error
	once.Do(func() {
		settingsInstance, err = initSettings()
	})
	if err != nil {
		return nil, fmt.Errorf("error initializing settings: %w", err)
	}
	return Setting(), nil
}

// Setting returns the current settings instance; it is nil until Load has run.
func Setting() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

func initSettings() (*Settings, error) {
	viper.SetConfigName("callmatch")
	viper.SetConfigType("yaml")

	configPaths, err := configDirs()
	if err != nil {
		return nil, err
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	viper.SetEnvPrefix("callmatch")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// no config file found, defaults apply
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}

	return settings, nil
}

// configDirs returns the paths searched for callmatch.yaml, most specific first.
func configDirs() ([]string, error) {
	dirs := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".config", "callmatch"))
	}
	dirs = append(dirs, "/etc/callmatch")
	return dirs, nil
}
