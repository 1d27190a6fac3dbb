// conf/defaults.go default values for settings
package conf

import "github.com/spf13/viper"

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	// Main configuration
	viper.SetDefault("main.name", "CallMatch")
	viper.SetDefault("main.log.path", "logs/callmatch.log")
	viper.SetDefault("main.log.maxsizemb", 50)
	viper.SetDefault("main.log.maxbackups", 5)
	viper.SetDefault("main.log.maxagedays", 30)
	viper.SetDefault("main.log.level", "info")

	// Engine limits
	viper.SetDefault("engine.maxsessions", 256)
	viper.SetDefault("engine.workerthreads", 0) // auto
	viper.SetDefault("engine.minfeatureframes", 10)
	viper.SetDefault("engine.finalizetimeoutms", 2000)

	// Streaming pipeline
	viper.SetDefault("pipeline.ringcapacity", 128)
	viper.SetDefault("pipeline.maxdrainpercall", 32)
	viper.SetDefault("pipeline.bufferpoolsize", 64)

	// Voice activity detection
	viper.SetDefault("vad.enabled", true)
	viper.SetDefault("vad.energythreshold", 0.01)
	viper.SetDefault("vad.minvoicedms", 40)
	viper.SetDefault("vad.hangoverms", 100)

	// MFCC extraction
	viper.SetDefault("mfcc.coefficients", 13)
	viper.SetDefault("mfcc.melfilters", 26)
	viper.SetDefault("mfcc.lowfreqhz", 0.0)
	viper.SetDefault("mfcc.highfreqhz", 0.0) // Nyquist
	viper.SetDefault("mfcc.preemphasis", 0.97)

	// Enhanced analyzers
	viper.SetDefault("analyzers.pitch.enabled", true)
	viper.SetDefault("analyzers.pitch.minfreqhz", 80.0)
	viper.SetDefault("analyzers.pitch.maxfreqhz", 2000.0)
	viper.SetDefault("analyzers.pitch.threshold", 0.2)
	viper.SetDefault("analyzers.harmonic.enabled", true)
	viper.SetDefault("analyzers.harmonic.fftsize", 4096)
	viper.SetDefault("analyzers.harmonic.overlappct", 0.75)
	viper.SetDefault("analyzers.cadence.enabled", true)
	viper.SetDefault("analyzers.cadence.mintempobpm", 60.0)
	viper.SetDefault("analyzers.cadence.maxtempobpm", 200.0)

	// Similarity fusion
	viper.SetDefault("similarity.gamma", 0.5)
	viper.SetDefault("similarity.bandmin", 20)
	viper.SetDefault("similarity.bandfraction", 0.1)
	viper.SetDefault("similarity.weights.mfcc", 0.5)
	viper.SetDefault("similarity.weights.pitch", 0.2)
	viper.SetDefault("similarity.weights.harmonic", 0.15)
	viper.SetDefault("similarity.weights.cadence", 0.1)
	viper.SetDefault("similarity.weights.energy", 0.05)
	viper.SetDefault("similarity.confidencefloor", 0.5)

	// Master call cache
	viper.SetDefault("cache.path", "masters")
	viper.SetDefault("cache.maxrecords", 64)
	viper.SetDefault("cache.negativettls", 30)

	// Capture (listen command)
	viper.SetDefault("capture.device", "")
	viper.SetDefault("capture.samplerate", 44100)

	// Output
	viper.SetDefault("output.metricsenabled", false)
	viper.SetDefault("output.metricsaddr", ":9090")
}
