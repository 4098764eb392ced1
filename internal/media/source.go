package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	pionmedia "github.com/pion/webrtc/v3/pkg/media"
	"github.com/pion/webrtc/v3/pkg/media/ivfreader"
	"github.com/pion/webrtc/v3/pkg/media/oggreader"
)

const oggPageDuration = 20 * time.Millisecond

// PlayIVF streams VP8 frames from an IVF file into the track at the file's
// frame rate. With loop set the file restarts at EOF, otherwise the track
// ends when the file does.
func PlayIVF(ctx context.Context, track *LocalTrack, path string, loop bool) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open ivf: %w", err)
	}
	defer file.Close()

	for {
		err := playIVFOnce(ctx, track, file)
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		if err == nil || !loop {
			if err != nil {
				track.End()
			}
			return nil
		}
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("rewind ivf: %w", err)
		}
	}
}

// playIVFOnce returns io.EOF when the file is exhausted and nil when the
// track or context stopped first.
func playIVFOnce(ctx context.Context, track *LocalTrack, r io.Reader) error {
	ivf, header, err := ivfreader.NewWith(r)
	if err != nil {
		return fmt.Errorf("read ivf header: %w", err)
	}

	frameDuration := time.Second / 30
	if header.TimebaseDenominator > 0 && header.TimebaseNumerator > 0 {
		frameDuration = time.Duration(float64(header.TimebaseNumerator) / float64(header.TimebaseDenominator) * float64(time.Second))
	}

	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-track.Done():
			return nil
		case <-ticker.C:
		}

		frame, _, err := ivf.ParseNextFrame()
		if err != nil {
			return err
		}
		if err := track.WriteSample(pionmedia.Sample{Data: frame, Duration: frameDuration}); err != nil {
			if errors.Is(err, ErrTrackStopped) {
				return nil
			}
			return fmt.Errorf("write video sample: %w", err)
		}
	}
}

// PlayOgg streams Opus pages from an Ogg file into the track, restarting
// at EOF.
func PlayOgg(ctx context.Context, track *LocalTrack, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open ogg: %w", err)
	}
	defer file.Close()

	for {
		err := playOggOnce(ctx, track, file)
		if !errors.Is(err, io.EOF) {
			return err
		}
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("rewind ogg: %w", err)
		}
	}
}

func playOggOnce(ctx context.Context, track *LocalTrack, r io.Reader) error {
	ogg, _, err := oggreader.NewWith(r)
	if err != nil {
		return fmt.Errorf("read ogg header: %w", err)
	}

	ticker := time.NewTicker(oggPageDuration)
	defer ticker.Stop()

	var lastGranule uint64
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-track.Done():
			return nil
		case <-ticker.C:
		}

		page, header, err := ogg.ParseNextPage()
		if err != nil {
			return err
		}

		sampleCount := float64(header.GranulePosition - lastGranule)
		lastGranule = header.GranulePosition
		duration := time.Duration(sampleCount / 48000 * float64(time.Second))

		if err := track.WriteSample(pionmedia.Sample{Data: page, Duration: duration}); err != nil {
			if errors.Is(err, ErrTrackStopped) {
				return nil
			}
			return fmt.Errorf("write audio sample: %w", err)
		}
	}
}
