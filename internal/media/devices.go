package media

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/huddle/lib/logger/sl"
)

// FileDevices captures from pre-encoded files: an IVF camera, an Ogg
// microphone and an IVF screen. The camera and microphone loop; the screen
// capture ends when its file does.
type FileDevices struct {
	CameraPath string
	MicPath    string
	ScreenPath string

	Log *slog.Logger
}

// UserMedia returns a stream with one audio and one video track. A missing
// file leaves the matching track silent.
func (d *FileDevices) UserMedia(ctx context.Context) (*Stream, error) {
	if d.CameraPath == "" && d.MicPath == "" {
		return nil, ErrPermissionDenied
	}

	streamID := "camera-" + uuid.NewString()
	video, err := NewLocalTrack(KindVideo, "video-"+uuid.NewString(), streamID)
	if err != nil {
		return nil, err
	}
	audio, err := NewLocalTrack(KindAudio, "audio-"+uuid.NewString(), streamID)
	if err != nil {
		return nil, err
	}

	if d.CameraPath != "" {
		go d.play("camera", func() error { return PlayIVF(ctx, video, d.CameraPath, true) })
	}
	if d.MicPath != "" {
		go d.play("microphone", func() error { return PlayOgg(ctx, audio, d.MicPath) })
	}

	return NewStream(streamID, audio, video), nil
}

// DisplayMedia returns a stream with a single screen video track. Without a
// screen file the capture is treated as refused.
func (d *FileDevices) DisplayMedia(ctx context.Context) (*Stream, error) {
	if d.ScreenPath == "" {
		return nil, ErrPermissionDenied
	}
	if err := ctx.Err(); err != nil {
		return nil, ErrCaptureCancelled
	}

	streamID := "screen-" + uuid.NewString()
	video, err := NewLocalTrack(KindVideo, "screen-"+uuid.NewString(), streamID)
	if err != nil {
		return nil, err
	}

	go d.play("screen", func() error { return PlayIVF(ctx, video, d.ScreenPath, false) })

	return NewStream(streamID, video), nil
}

func (d *FileDevices) play(source string, fn func() error) {
	if err := fn(); err != nil {
		log := d.Log
		if log == nil {
			log = slog.Default()
		}
		log.Warn("media source stopped", slog.String("source", source), sl.Err(err))
	}
}
