// Command genvideo writes a synthetic .Mjpeg test file in the frame
// format origin servers read (video.Source): concatenated frames, each
// prefixed by a 5-byte ASCII decimal length.
package main

import (
	"fmt"
	"math/rand"
	"os"

	"github.com/spf13/cobra"
)

// jpegSOI/jpegEOI bracket each synthetic frame so the output at least
// looks like a sequence of JPEG images to a byte-level inspection tool,
// even though the fill bytes between them are not a real image.
var (
	jpegSOI = []byte{0xff, 0xd8}
	jpegEOI = []byte{0xff, 0xd9}
)

func main() {
	var frames int
	var frameSize int
	var seed int64

	cmd := &cobra.Command{
		Use:   "genvideo <output-path>",
		Short: "generate a synthetic length-prefixed .Mjpeg test file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return generate(args[0], frames, frameSize, seed)
		},
	}

	cmd.Flags().IntVarP(&frames, "frames", "n", 100, "number of frames to generate")
	cmd.Flags().IntVarP(&frameSize, "frame-size", "z", 4096, "payload size in bytes per frame")
	cmd.Flags().Int64VarP(&seed, "seed", "r", 1, "random source seed, for reproducible test fixtures")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "genvideo: %v\n", err)
		os.Exit(1)
	}
}

func generate(path string, frames, frameSize int, seed int64) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("genvideo: create %s: %w", path, err)
	}
	defer f.Close()

	rng := rand.New(rand.NewSource(seed))

	for i := 0; i < frames; i++ {
		payload := make([]byte, frameSize)
		copy(payload, jpegSOI)
		rng.Read(payload[len(jpegSOI) : len(payload)-len(jpegEOI)])
		copy(payload[len(payload)-len(jpegEOI):], jpegEOI)

		if _, err := fmt.Fprintf(f, "%05d", len(payload)); err != nil {
			return fmt.Errorf("genvideo: write frame %d length: %w", i, err)
		}
		if _, err := f.Write(payload); err != nil {
			return fmt.Errorf("genvideo: write frame %d payload: %w", i, err)
		}
	}

	fmt.Printf("wrote %d frames (%d bytes each) to %s\n", frames, frameSize, path)
	return nil
}
