package call

import "errors"

var (
	ErrMediaBlocked      = errors.New("camera and microphone are not available")
	ErrSessionClosed     = errors.New("session closed")
	ErrNotRegistered     = errors.New("transport has not assigned a peer id yet")
	ErrSessionStarted    = errors.New("session already started")
	ErrAlreadySharing    = errors.New("already sharing the screen")
	ErrNotSharing        = errors.New("not sharing the screen")
	ErrShareInProgress   = errors.New("screen capture already requested")
	ErrNoVideoTrack      = errors.New("stream has no video track")
	ErrIllegalTransition = errors.New("illegal call state transition")
)
