// Package transport establishes the bidirectional message channel to the
// Realtime service. Two implementations are provided: a WebRTC peer
// connection with an "oai-events" data channel, and a plain WebSocket.
// Both satisfy dispatch.Channel.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"

	"github.com/voicebridge/voicebridge/internal/httpc"
	"github.com/voicebridge/voicebridge/internal/log"
	"github.com/voicebridge/voicebridge/pkg/dispatch"
	"github.com/voicebridge/voicebridge/pkg/realtime"
)

// Errors returned by transports.
var (
	ErrNotConnected = errors.New("transport: not connected")
	ErrClosed       = errors.New("transport: closed")
)

// dataChannelLabel is the label OpenAI expects for protocol events.
const dataChannelLabel = "oai-events"

// WebRTC negotiates a peer connection with the Realtime service and
// exchanges protocol events over its data channel.
type WebRTC struct {
	secret  string
	model   string
	baseURL string

	pc *webrtc.PeerConnection
	dc *webrtc.DataChannel

	mu     sync.Mutex
	closed bool
	opened chan struct{}

	// OnOpen fires once the data channel is established.
	OnOpen func()

	// OnMessage receives each inbound protocol event.
	OnMessage func(data []byte)

	// OnAudioRTP receives depacketized inbound audio. Playback is the
	// caller's concern; packets are dropped when unset.
	OnAudioRTP func(pkt *rtp.Packet)
}

// NewWebRTC creates a WebRTC transport authorized by an ephemeral client
// secret from the credential issuer.
func NewWebRTC(secret, model string) *WebRTC {
	return &WebRTC{
		secret:  secret,
		model:   model,
		baseURL: realtime.BaseURL,
		opened:  make(chan struct{}),
	}
}

// Connect creates the peer connection, performs the SDP offer/answer
// exchange against the Realtime endpoint and waits for the data channel
// to open.
func (t *WebRTC) Connect(ctx context.Context) error {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return fmt.Errorf("transport: create peer connection: %w", err)
	}
	t.pc = pc

	// The service sends its voice audio as a remote track.
	if _, err = pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		return fmt.Errorf("transport: add audio transceiver: %w", err)
	}

	dc, err := pc.CreateDataChannel(dataChannelLabel, nil)
	if err != nil {
		return fmt.Errorf("transport: create data channel: %w", err)
	}
	t.dc = dc

	dc.OnOpen(func() {
		log.Info("data channel open", "label", dc.Label())
		close(t.opened)
		if t.OnOpen != nil {
			t.OnOpen()
		}
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if t.OnMessage != nil {
			t.OnMessage(msg.Data)
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if track.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		log.Debug("audio track", "codec", track.Codec().MimeType)
		go t.readAudio(track)
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Debug("peer connection state", "state", state.String())
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("transport: create offer: %w", err)
	}

	// Gather candidates up front; the Realtime endpoint does a single
	// non-trickle exchange.
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("transport: set local description: %w", err)
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		return ctx.Err()
	}

	answer, err := t.exchangeSDP(ctx, pc.LocalDescription().SDP)
	if err != nil {
		return err
	}
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answer,
	}); err != nil {
		return fmt.Errorf("transport: set remote description: %w", err)
	}

	select {
	case <-t.opened:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("transport: waiting for data channel: %w", ctx.Err())
	}
}

// exchangeSDP posts the local offer to the Realtime endpoint, authorized
// by the ephemeral secret, and returns the answer SDP.
func (t *WebRTC) exchangeSDP(ctx context.Context, offerSDP string) (string, error) {
	url := fmt.Sprintf("%s?model=%s", t.baseURL, t.model)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(offerSDP))
	if err != nil {
		return "", fmt.Errorf("transport: build SDP request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.secret)
	req.Header.Set("Content-Type", "application/sdp")

	resp, err := httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("transport: SDP exchange: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("transport: read answer: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("transport: SDP exchange status %d: %s", resp.StatusCode, body)
	}
	return string(body), nil
}

func (t *WebRTC) readAudio(track *webrtc.TrackRemote) {
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			return
		}
		if t.OnAudioRTP != nil {
			t.OnAudioRTP(pkt)
		}
	}
}

// Send delivers a protocol event over the data channel.
func (t *WebRTC) Send(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if t.dc == nil || t.dc.ReadyState() != webrtc.DataChannelStateOpen {
		return ErrNotConnected
	}
	return t.dc.SendText(string(data))
}

// Close tears down the peer connection.
func (t *WebRTC) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	if t.pc != nil {
		return t.pc.Close()
	}
	return nil
}

var _ dispatch.Channel = (*WebRTC)(nil)
