// Package rtc drives the local media connection. The engine only toggles
// publication and mute state from capability-flag transitions; capture
// pipelines feed the local tracks from outside this package.
package rtc

import (
	"context"
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/edukit/classsync/internal/domain"
)

var ErrNotJoined = errors.New("media channel not joined")

type Connection struct {
	cfg webrtc.Configuration

	mu      sync.Mutex
	pc      *webrtc.PeerConnection
	channel string
	uid     domain.UID

	audioTrack  *webrtc.TrackLocalStaticSample
	videoTrack  *webrtc.TrackLocalStaticSample
	audioSender *webrtc.RTPSender
	videoSender *webrtc.RTPSender

	audioMuted bool
	videoMuted bool

	onClosed func()
}

func DefaultConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		},
	}
}

func NewConnection(cfg webrtc.Configuration) *Connection {
	return &Connection{cfg: cfg}
}

// OnClosed registers a callback fired when the peer connection fails or
// closes from the remote side.
func (c *Connection) OnClosed(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClosed = fn
}

func (c *Connection) Join(ctx context.Context, channel, token string, uid domain.UID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pc != nil {
		return nil
	}

	pc, err := webrtc.NewPeerConnection(c.cfg)
	if err != nil {
		return err
	}

	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "rtc").Str("channel", channel).Str("ice_state", s.String()).Msg("ICE state")
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("channel", channel).Str("peer_connection_state", s.String()).Msg("Peer state")
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed {
			c.mu.Lock()
			fn := c.onClosed
			c.mu.Unlock()
			if fn != nil {
				fn()
			}
		}
	})

	c.pc = pc
	c.channel = channel
	c.uid = uid
	log.Info().Str("module", "rtc").Str("channel", channel).Str("uid", uid.Key()).Msg("joined media channel")
	return nil
}

// Publish attaches the local audio and video tracks to the connection.
// Idempotent while published.
func (c *Connection) Publish(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pc == nil {
		return ErrNotJoined
	}
	if c.audioSender != nil {
		return nil
	}

	audio, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", c.uid.Key())
	if err != nil {
		return err
	}
	video, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", c.uid.Key())
	if err != nil {
		return err
	}

	audioSender, err := c.pc.AddTrack(audio)
	if err != nil {
		return err
	}
	videoSender, err := c.pc.AddTrack(video)
	if err != nil {
		_ = c.pc.RemoveTrack(audioSender)
		return err
	}

	c.audioTrack, c.videoTrack = audio, video
	c.audioSender, c.videoSender = audioSender, videoSender
	log.Info().Str("module", "rtc").Str("channel", c.channel).Msg("published local tracks")
	return nil
}

func (c *Connection) Unpublish(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pc == nil {
		return ErrNotJoined
	}
	if c.audioSender == nil {
		return nil
	}
	if err := c.pc.RemoveTrack(c.audioSender); err != nil {
		return err
	}
	if err := c.pc.RemoveTrack(c.videoSender); err != nil {
		return err
	}
	c.audioTrack, c.videoTrack = nil, nil
	c.audioSender, c.videoSender = nil, nil
	log.Info().Str("module", "rtc").Str("channel", c.channel).Msg("unpublished local tracks")
	return nil
}

// MuteLocalAudio pauses the local audio pipeline. The capture loop checks
// AudioMuted before writing samples.
func (c *Connection) MuteLocalAudio(muted bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.audioMuted = muted
	return nil
}

func (c *Connection) MuteLocalVideo(muted bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.videoMuted = muted
	return nil
}

func (c *Connection) AudioMuted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.audioMuted
}

func (c *Connection) VideoMuted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.videoMuted
}

// AudioTrack exposes the published audio track to the capture pipeline.
// Nil while unpublished.
func (c *Connection) AudioTrack() *webrtc.TrackLocalStaticSample {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.audioTrack
}

func (c *Connection) VideoTrack() *webrtc.TrackLocalStaticSample {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.videoTrack
}

func (c *Connection) Exit(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pc == nil {
		return nil
	}
	err := c.pc.Close()
	if err != nil {
		log.Error().Err(err).Str("module", "rtc").Str("channel", c.channel).Msg("close error")
	} else {
		log.Info().Str("module", "rtc").Str("channel", c.channel).Msg("closed")
	}
	c.pc = nil
	c.audioTrack, c.videoTrack = nil, nil
	c.audioSender, c.videoSender = nil, nil
	return err
}
