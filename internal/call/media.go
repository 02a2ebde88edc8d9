package call

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
)

// trackMedia is a MediaStream backed by pion static sample tracks, one
// audio and one video. Toggling flips enabled flags only; the sample
// writers consult them, nothing is renegotiated.
type trackMedia struct {
	mu      sync.Mutex
	audio   *webrtc.TrackLocalStaticSample
	video   *webrtc.TrackLocalStaticSample
	audioOn bool
	videoOn bool
}

// TrackDevices acquires local media as pion tracks. StreamID groups both
// tracks into one stream on the remote side.
type TrackDevices struct {
	StreamID string
}

func (d TrackDevices) GetUserMedia(_ context.Context) (MediaStream, error) {
	streamID := d.StreamID
	if streamID == "" {
		streamID = "quickchat"
	}
	audio, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", streamID)
	if err != nil {
		return nil, fmt.Errorf("audio track: %w", err)
	}
	video, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", streamID)
	if err != nil {
		return nil, fmt.Errorf("video track: %w", err)
	}
	return &trackMedia{audio: audio, video: video, audioOn: true, videoOn: true}, nil
}

func (m *trackMedia) ToggleAudio() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audioOn = !m.audioOn
	return m.audioOn
}

func (m *trackMedia) ToggleVideo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.videoOn = !m.videoOn
	return m.videoOn
}

func (m *trackMedia) AudioEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.audioOn
}

func (m *trackMedia) VideoEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.videoOn
}

// Stop is part of teardown. Static tracks hold no device handles; the
// sample writers stop when the peer connection closes.
func (m *trackMedia) Stop() {}

// Tracks exposes the local tracks for attachment to a peer connection.
func (m *trackMedia) Tracks() []webrtc.TrackLocal {
	return []webrtc.TrackLocal{m.audio, m.video}
}
