package webrtcpeer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/securesend/coord/internal/coord"
)

// DataChannelLabel names the channel the offerer opens.
const DataChannelLabel = "securesend"

const (
	wsWriteWait = 5 * time.Second
	inboxSize   = 64
)

var ErrClosed = errors.New("peer closed")

// RejectedError is the coordinator refusing the connect. Code and Message
// come from the response body.
type RejectedError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("coordinator rejected request: %d %s: %s", e.StatusCode, e.Code, e.Message)
}

type Config struct {
	// GatewayURL is the ws:// or wss:// URL of the coordinator gateway.
	GatewayURL string
	TransferID string
	Role       coord.Role

	API        *webrtc.API
	ICEServers []webrtc.ICEServer
	Dialer     *websocket.Dialer
	// Header is sent with the WebSocket handshake (e.g. Origin).
	Header http.Header
	Logger *slog.Logger
}

// Peer is one side of a transfer. The offerer waits for NEW_RECIPIENT and
// opens the data channel; the receiver answers the offer it is sent.
type Peer struct {
	cfg Config
	log *slog.Logger
	ws  *websocket.Conn
	pc  *webrtc.PeerConnection

	writeMu sync.Mutex

	mu            sync.Mutex
	remote        string
	remoteApplied bool
	pending       []webrtc.ICECandidateInit
	dc            *webrtc.DataChannel

	inbox    chan []byte
	open     chan struct{}
	openOnce sync.Once

	done      chan struct{}
	err       error
	doneOnce  sync.Once
	closeOnce sync.Once
}

// Dial connects to the gateway as cfg.Role for cfg.TransferID and starts
// signaling in the background.
func Dial(ctx context.Context, cfg Config) (*Peer, error) {
	if cfg.TransferID == "" {
		return nil, errors.New("transfer id is required")
	}
	if cfg.Role != coord.RoleOfferer && cfg.Role != coord.RoleReceiver {
		return nil, fmt.Errorf("unsupported role %v", cfg.Role)
	}
	u, err := url.Parse(cfg.GatewayURL)
	if err != nil {
		return nil, fmt.Errorf("invalid gateway url: %w", err)
	}
	q := u.Query()
	q.Set("transfer_id", cfg.TransferID)
	q.Set("role", cfg.Role.String())
	u.RawQuery = q.Encode()

	if cfg.API == nil {
		cfg.API = NewAPI(APIOptions{Logger: cfg.Logger})
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("role", cfg.Role.String(), "transfer_id", cfg.TransferID)

	pc, err := cfg.API.NewPeerConnection(webrtc.Configuration{ICEServers: cfg.ICEServers})
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	ws, resp, err := cfg.Dialer.DialContext(ctx, u.String(), cfg.Header)
	if err != nil {
		_ = pc.Close()
		if resp != nil {
			return nil, fmt.Errorf("dial gateway: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial gateway: %w", err)
	}

	p := &Peer{
		cfg:   cfg,
		log:   log,
		ws:    ws,
		pc:    pc,
		inbox: make(chan []byte, inboxSize),
		open:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	pc.OnICECandidate(p.onLocalCandidate)
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != DataChannelLabel {
			p.log.Warn("rejecting unexpected datachannel", "label", dc.Label())
			_ = dc.Close()
			return
		}
		p.bindDataChannel(dc)
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		p.log.Debug("peer connection state changed", "state", state.String())
		if state == webrtc.PeerConnectionStateFailed {
			p.fail(errors.New("peer connection failed"))
		}
	})

	go p.readLoop()
	return p, nil
}

// WaitOpen blocks until the data channel is open, signaling fails or ctx ends.
func (p *Peer) WaitOpen(ctx context.Context) error {
	select {
	case <-p.open:
		return nil
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send writes data on the open data channel.
func (p *Peer) Send(data []byte) error {
	p.mu.Lock()
	dc := p.dc
	p.mu.Unlock()
	if dc == nil {
		return errors.New("datachannel not open")
	}
	return dc.Send(data)
}

// Recv returns the next data channel message.
func (p *Peer) Recv(ctx context.Context) ([]byte, error) {
	select {
	case msg := <-p.inbox:
		return msg, nil
	case <-p.done:
		return nil, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RemoteHandle is the connection handle of the other peer, once known.
func (p *Peer) RemoteHandle() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remote
}

// Done is closed when the peer stops; Err then reports why.
func (p *Peer) Done() <-chan struct{} { return p.done }

func (p *Peer) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

func (p *Peer) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.fail(ErrClosed)
		p.writeMu.Lock()
		_ = p.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(wsWriteWait))
		p.writeMu.Unlock()
		_ = p.ws.Close()
		err = p.pc.Close()
	})
	return err
}

func (p *Peer) fail(err error) {
	p.doneOnce.Do(func() {
		p.err = err
		close(p.done)
	})
}

func (p *Peer) readLoop() {
	for {
		_, data, err := p.ws.ReadMessage()
		if err != nil {
			p.fail(fmt.Errorf("gateway connection closed: %w", err))
			return
		}
		if err := p.handleFrame(data); err != nil {
			p.fail(err)
			_ = p.ws.Close()
			return
		}
	}
}

// frame is either a coordinator acknowledgement or a relayed envelope.
type frame struct {
	StatusCode int    `json:"statusCode"`
	Route      string `json:"route"`
	Sender     string `json:"sender"`
	Body       string `json:"body"`
}

func (p *Peer) handleFrame(data []byte) error {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		p.log.Warn("ignoring malformed frame", "err", err)
		return nil
	}
	if f.StatusCode != 0 {
		rejected := &RejectedError{StatusCode: f.StatusCode}
		var body struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal([]byte(f.Body), &body); err == nil {
			rejected.Code = body.Code
			rejected.Message = body.Message
		}
		if f.Route == string(coord.RouteConnect) {
			return rejected
		}
		// A failed relay (typically recipient_gone for a late candidate)
		// leaves the connection usable.
		p.log.Warn("coordinator rejected message", "route", f.Route, "status", rejected.StatusCode, "code", rejected.Code)
		return nil
	}

	sig, err := coord.DecodeSignal(f.Body)
	if err != nil {
		p.log.Warn("ignoring invalid signal", "sender", f.Sender, "err", err)
		return nil
	}
	return p.handleSignal(f.Sender, sig)
}

func (p *Peer) handleSignal(sender string, sig coord.Signal) error {
	switch sig.Type {
	case coord.SignalNewRecipient:
		if p.cfg.Role != coord.RoleOfferer {
			return nil
		}
		return p.startOffer(sender)
	case coord.SignalNewOffer:
		if p.cfg.Role != coord.RoleReceiver {
			return nil
		}
		return p.acceptOffer(sender, *sig.Offer)
	case coord.SignalNewAnswer:
		if p.cfg.Role != coord.RoleOfferer || !p.isRemote(sender) {
			return nil
		}
		answer, err := fromWireDescription(*sig.Answer)
		if err != nil {
			return err
		}
		if err := p.pc.SetRemoteDescription(answer); err != nil {
			return fmt.Errorf("set remote answer: %w", err)
		}
		return p.markRemoteApplied()
	case coord.SignalNewICECandidate:
		// Candidates can overtake the offer they belong to; they are queued
		// until the remote description is applied.
		if !p.isRemoteOrUnset(sender) {
			return nil
		}
		return p.addRemoteCandidate(fromWireCandidate(*sig.Candidate))
	}
	return nil
}

func (p *Peer) startOffer(recipient string) error {
	if !p.claimRemote(recipient) {
		p.log.Info("ignoring additional recipient", "recipient", recipient)
		return nil
	}

	dc, err := p.pc.CreateDataChannel(DataChannelLabel, nil)
	if err != nil {
		return fmt.Errorf("create datachannel: %w", err)
	}
	p.bindDataChannel(dc)

	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local offer: %w", err)
	}
	return p.sendSignal(coord.Signal{Type: coord.SignalNewOffer, Offer: toWireDescription(offer)})
}

func (p *Peer) acceptOffer(sender string, wire coord.SessionDescription) error {
	if !p.claimRemote(sender) {
		p.log.Info("ignoring offer from unexpected sender", "sender", sender)
		return nil
	}
	offer, err := fromWireDescription(wire)
	if err != nil {
		return err
	}
	if err := p.pc.SetRemoteDescription(offer); err != nil {
		return fmt.Errorf("set remote offer: %w", err)
	}
	if err := p.markRemoteApplied(); err != nil {
		return err
	}

	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("create answer: %w", err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("set local answer: %w", err)
	}
	return p.sendSignal(coord.Signal{Type: coord.SignalNewAnswer, Answer: toWireDescription(answer)})
}

// claimRemote pins the other peer's handle. It reports false if a different
// peer was already pinned.
func (p *Peer) claimRemote(handle string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.remote != "" && p.remote != handle {
		return false
	}
	p.remote = handle
	return true
}

func (p *Peer) isRemote(handle string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remote != "" && p.remote == handle
}

func (p *Peer) isRemoteOrUnset(handle string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remote == "" || p.remote == handle
}

// markRemoteApplied flushes candidates that arrived before the remote description.
func (p *Peer) markRemoteApplied() error {
	p.mu.Lock()
	p.remoteApplied = true
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()

	for _, c := range pending {
		if err := p.pc.AddICECandidate(c); err != nil {
			return fmt.Errorf("add ice candidate: %w", err)
		}
	}
	return nil
}

func (p *Peer) addRemoteCandidate(c webrtc.ICECandidateInit) error {
	p.mu.Lock()
	if !p.remoteApplied {
		p.pending = append(p.pending, c)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()
	if err := p.pc.AddICECandidate(c); err != nil {
		return fmt.Errorf("add ice candidate: %w", err)
	}
	return nil
}

func (p *Peer) onLocalCandidate(c *webrtc.ICECandidate) {
	if c == nil {
		return
	}
	sig := coord.Signal{Type: coord.SignalNewICECandidate, Candidate: toWireCandidate(c.ToJSON())}
	if err := p.sendSignal(sig); err != nil {
		p.log.Debug("dropping local ice candidate", "err", err)
	}
}

func (p *Peer) bindDataChannel(dc *webrtc.DataChannel) {
	dc.OnOpen(func() {
		p.mu.Lock()
		p.dc = dc
		p.mu.Unlock()
		p.openOnce.Do(func() { close(p.open) })
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		select {
		case p.inbox <- msg.Data:
		default:
			p.log.Warn("dropping datachannel message; inbox full", "bytes", len(msg.Data))
		}
	})
}

func (p *Peer) sendSignal(sig coord.Signal) error {
	p.mu.Lock()
	to := p.remote
	p.mu.Unlock()
	if to == "" {
		return errors.New("no remote peer yet")
	}

	body, err := sig.Encode()
	if err != nil {
		return err
	}
	msg := coord.InboundMessage{
		Action:    string(coord.RouteSendMessage),
		Recipient: to,
		Body:      &body,
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_ = p.ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := p.ws.WriteJSON(msg); err != nil {
		return fmt.Errorf("send %s: %w", sig.Type, err)
	}
	return nil
}
