// Package listen implements the listen subcommand: realtime microphone
// scoring against a master call.
package listen

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wildcall/callmatch-go/internal/capture"
	"github.com/wildcall/callmatch-go/internal/conf"
	"github.com/wildcall/callmatch-go/internal/engine"
	"github.com/wildcall/callmatch-go/internal/errors"
)

// Command creates the listen command.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		callID    string
		frameSize int
		hopSize   int
		coeffs    int
	)

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Score live microphone audio against a master call",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runListen(settings, callID, frameSize, hopSize, coeffs)
		},
	}

	cmd.Flags().StringVarP(&callID, "master", "m", "", "Master call identifier (required)")
	cmd.Flags().IntVar(&frameSize, "frame-size", 512, "Analysis frame size in samples, power of two")
	cmd.Flags().IntVar(&hopSize, "hop-size", 256, "Hop size in samples")
	cmd.Flags().IntVar(&coeffs, "coeffs", 13, "MFCC coefficients")
	_ = cmd.MarkFlagRequired("master")

	return cmd
}

func runListen(settings *conf.Settings, callID string, frameSize, hopSize, coeffs int) error {
	eng, err := engine.New(engine.FromSettings(settings))
	if err != nil {
		return err
	}
	defer eng.Close() //nolint:errcheck // process exits right after

	id, err := eng.CreateSession(settings.Capture.SampleRate, frameSize, hopSize, coeffs)
	if err != nil {
		return err
	}
	if err := eng.LoadMasterCall(id, callID); err != nil {
		return err
	}

	source := capture.NewSource(capture.Config{
		DeviceName: settings.Capture.Device,
		SampleRate: settings.Capture.SampleRate,
		ChunkSize:  frameSize,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := source.Start(ctx); err != nil {
		return err
	}
	defer source.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	fmt.Println("listening... press ctrl-c to finish")
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case chunk := <-source.Chunks():
			if err := eng.ProcessChunk(id, chunk); err != nil && !errors.IsOverflow(err) {
				return err
			}
		case err := <-source.Errors():
			return err
		case <-ticker.C:
			rep, err := eng.GetSimilarity(id)
			if err != nil {
				return err
			}
			if rep.Ready {
				fmt.Printf("\rscore %.3f (pitch %.2f, cadence %.2f)  ",
					rep.Overall, rep.Breakdown.Pitch.Score, rep.Breakdown.Cadence.Score)
			} else {
				fmt.Printf("\rlistening (%d frames)          ", rep.UserFrames)
			}
		case <-sig:
			fmt.Println()
			rep, err := eng.Finalize(id)
			if err != nil {
				return err
			}
			fmt.Printf("final score: %.3f (ready=%v)\n", rep.Overall, rep.Ready)
			return nil
		}
	}
}
