// Package extract implements the extract subcommand: bake a .mfc feature
// file from a WAV recording so it can serve as a master call.
package extract

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wildcall/callmatch-go/internal/audioio"
	"github.com/wildcall/callmatch-go/internal/conf"
	"github.com/wildcall/callmatch-go/internal/engine"
)

// Command creates the extract command.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		callID    string
		frameSize int
		hopSize   int
		coeffs    int
	)

	cmd := &cobra.Command{
		Use:   "extract [wav file]",
		Short: "Bake master call features from a recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(settings, args[0], callID, frameSize, hopSize, coeffs)
		},
	}

	cmd.Flags().StringVarP(&callID, "id", "i", "", "Call identifier (defaults to the file name)")
	cmd.Flags().IntVar(&frameSize, "frame-size", 512, "Analysis frame size in samples, power of two")
	cmd.Flags().IntVar(&hopSize, "hop-size", 256, "Hop size in samples")
	cmd.Flags().IntVar(&coeffs, "coeffs", 13, "MFCC coefficients")

	return cmd
}

func runExtract(settings *conf.Settings, wavPath, callID string, frameSize, hopSize, coeffs int) error {
	if callID == "" {
		base := filepath.Base(wavPath)
		callID = strings.TrimSuffix(base, filepath.Ext(base))
	}

	clip, err := audioio.ReadWAV(wavPath)
	if err != nil {
		return err
	}

	eng, err := engine.New(engine.FromSettings(settings))
	if err != nil {
		return err
	}
	defer eng.Close() //nolint:errcheck // process exits right after

	rec, err := eng.ExtractMasterRecord(callID, clip.Samples, clip.SampleRate, frameSize, hopSize, coeffs)
	if err != nil {
		return err
	}
	if err := eng.Cache().Store(rec); err != nil {
		return err
	}

	fmt.Printf("baked %q: %d frames at %d Hz", callID, rec.Features.Len(), clip.SampleRate)
	if rec.Enhanced != nil {
		fmt.Printf(", pitch %.1f Hz, tempo %.0f BPM", rec.Enhanced.Pitch.MedianF0Hz, rec.Enhanced.Cadence.TempoBPM)
	}
	fmt.Println()
	return nil
}
