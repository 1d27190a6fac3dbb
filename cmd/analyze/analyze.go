// Package analyze implements the analyze subcommand: score a user recording
// against a master call and print the component breakdown.
package analyze

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wildcall/callmatch-go/internal/audioio"
	"github.com/wildcall/callmatch-go/internal/conf"
	"github.com/wildcall/callmatch-go/internal/engine"
	"github.com/wildcall/callmatch-go/internal/summary"
)

// Command creates the analyze command.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		callID      string
		frameSize   int
		hopSize     int
		coeffs      int
		showSummary bool
	)

	cmd := &cobra.Command{
		Use:   "analyze [wav file]",
		Short: "Score a recording against a master call",
		Long:  "Analyze streams the given WAV file through an analysis session with the named master call attached and prints the blended similarity report.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(settings, args[0], callID, frameSize, hopSize, coeffs, showSummary)
		},
	}

	cmd.Flags().StringVarP(&callID, "master", "m", "", "Master call identifier (required)")
	cmd.Flags().IntVar(&frameSize, "frame-size", 512, "Analysis frame size in samples, power of two")
	cmd.Flags().IntVar(&hopSize, "hop-size", 256, "Hop size in samples")
	cmd.Flags().IntVar(&coeffs, "coeffs", 13, "MFCC coefficients")
	cmd.Flags().BoolVar(&showSummary, "summary", false, "Print waveform and level summaries")
	_ = cmd.MarkFlagRequired("master")

	return cmd
}

func runAnalyze(settings *conf.Settings, wavPath, callID string, frameSize, hopSize, coeffs int, showSummary bool) error {
	clip, err := audioio.ReadWAV(wavPath)
	if err != nil {
		return err
	}

	eng, err := engine.New(engine.FromSettings(settings))
	if err != nil {
		return err
	}
	defer eng.Close() //nolint:errcheck // process exits right after

	rep, err := eng.ScoreOnce(callID, clip.Samples, clip.SampleRate, frameSize, hopSize, coeffs)
	if err != nil {
		return err
	}

	fmt.Printf("overall:    %.3f (ready=%v, confidence=%.2f)\n", rep.Overall, rep.Ready, rep.Confidence)
	fmt.Printf("  mfcc:     %.3f\n", rep.Breakdown.MFCC.Score)
	fmt.Printf("  pitch:    %.3f (conf %.2f)\n", rep.Breakdown.Pitch.Score, rep.Breakdown.Pitch.Confidence)
	fmt.Printf("  harmonic: %.3f (conf %.2f)\n", rep.Breakdown.Harmonic.Score, rep.Breakdown.Harmonic.Confidence)
	fmt.Printf("  cadence:  %.3f (conf %.2f)\n", rep.Breakdown.Cadence.Score, rep.Breakdown.Cadence.Confidence)
	fmt.Printf("  energy:   %.3f\n", rep.Breakdown.Energy.Score)
	fmt.Printf("frames:     user=%d master=%d\n", rep.UserFrames, rep.MasterFrames)

	if showSummary {
		printSummary(clip)
	}
	return nil
}

// printSummary renders a coarse textual waveform and level strip.
func printSummary(clip *audioio.Clip) {
	peaks := summary.WaveformPeaks(clip.Samples, 60)
	fmt.Print("waveform:   ")
	for _, p := range peaks {
		fmt.Print(levelGlyph(float64(p.Max - p.Min)))
	}
	fmt.Println()

	levels := summary.LevelTrack(clip.Samples, clip.SampleRate, 50)
	fmt.Print("level:      ")
	for _, l := range levels {
		fmt.Print(levelGlyph(float64(l) * 2))
	}
	fmt.Println()
}

func levelGlyph(v float64) string {
	glyphs := []string{" ", ".", ":", "-", "=", "#"}
	idx := int(v * float64(len(glyphs)))
	if idx >= len(glyphs) {
		idx = len(glyphs) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return glyphs[idx]
}
