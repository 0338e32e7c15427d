// Package orchtest provides scripted connection and signaling fakes for orchestrator tests.
package orchtest

import (
	"context"
	"sync"

	"github.com/dkeye/peerlink/internal/core"
	"github.com/dkeye/peerlink/internal/domain"
	"github.com/pion/webrtc/v4"
)

// Journal records named steps in order across fakes.
type Journal struct {
	mu    sync.Mutex
	steps []string
}

func (j *Journal) Record(step string) {
	j.mu.Lock()
	j.steps = append(j.steps, step)
	j.mu.Unlock()
}

func (j *Journal) Steps() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.steps...)
}

// Connector hands out PC, or fails with Err.
type Connector struct {
	PC  *PeerConnection
	Err error

	mu         sync.Mutex
	calls      int
	iceServers []string
}

func (c *Connector) Connect(_ context.Context, iceServers []string) (core.PeerConnection, error) {
	c.mu.Lock()
	c.calls++
	c.iceServers = iceServers
	c.mu.Unlock()
	if c.Err != nil {
		return nil, c.Err
	}
	return c.PC, nil
}

func (c *Connector) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// PeerConnection records every call into its Journal as "pc.<method>[:arg]".
type PeerConnection struct {
	Journal *Journal

	SetRemoteErr      error
	AnswerErr         error
	OfferErr          error
	AddCandidateErr   error
	AddTransceiverErr error

	mu           sync.Mutex
	onCandidate  func(domain.IceCandidate)
	onState      func(domain.ConnectionState)
	onTrack      func(core.RemoteTrack)
	candidates   []domain.IceCandidate
	transceivers []domain.MediaKind
	closed       int
	busy         bool
	overlapped   bool
}

func NewPeerConnection(j *Journal) *PeerConnection {
	if j == nil {
		j = &Journal{}
	}
	return &PeerConnection{Journal: j}
}

// enter flags calls that overlap each other.
func (p *PeerConnection) enter(step string) func() {
	p.mu.Lock()
	if p.busy {
		p.overlapped = true
	}
	p.busy = true
	p.mu.Unlock()
	p.Journal.Record(step)
	return func() {
		p.mu.Lock()
		p.busy = false
		p.mu.Unlock()
	}
}

func (p *PeerConnection) AddTransceiver(kind domain.MediaKind, _ webrtc.TrackLocal, _ domain.Direction) error {
	defer p.enter("pc.AddTransceiver:" + kind.String())()
	if p.AddTransceiverErr != nil {
		return p.AddTransceiverErr
	}
	p.mu.Lock()
	p.transceivers = append(p.transceivers, kind)
	p.mu.Unlock()
	return nil
}

func (p *PeerConnection) SetRemoteDescription(d domain.SessionDescription) error {
	defer p.enter("pc.SetRemoteDescription:" + string(d.Type))()
	return p.SetRemoteErr
}

func (p *PeerConnection) CreateAnswer(context.Context) (domain.SessionDescription, error) {
	defer p.enter("pc.CreateAnswer")()
	if p.AnswerErr != nil {
		return domain.SessionDescription{}, p.AnswerErr
	}
	return domain.SessionDescription{Type: domain.SDPTypeAnswer, SDP: "v=0 answer"}, nil
}

func (p *PeerConnection) CreateOffer(context.Context) (domain.SessionDescription, error) {
	defer p.enter("pc.CreateOffer")()
	if p.OfferErr != nil {
		return domain.SessionDescription{}, p.OfferErr
	}
	return domain.SessionDescription{Type: domain.SDPTypeOffer, SDP: "v=0 offer"}, nil
}

func (p *PeerConnection) AddICECandidate(c domain.IceCandidate) error {
	defer p.enter("pc.AddICECandidate:" + c.Candidate)()
	p.mu.Lock()
	p.candidates = append(p.candidates, c)
	p.mu.Unlock()
	return p.AddCandidateErr
}

func (p *PeerConnection) OnICECandidate(fn func(domain.IceCandidate)) {
	p.mu.Lock()
	p.onCandidate = fn
	p.mu.Unlock()
}

func (p *PeerConnection) OnConnectionStateChange(fn func(domain.ConnectionState)) {
	p.mu.Lock()
	p.onState = fn
	p.mu.Unlock()
}

func (p *PeerConnection) OnTrack(fn func(core.RemoteTrack)) {
	p.mu.Lock()
	p.onTrack = fn
	p.mu.Unlock()
}

func (p *PeerConnection) Close() error {
	p.mu.Lock()
	p.closed++
	p.mu.Unlock()
	p.Journal.Record("pc.Close")
	return nil
}

// EmitCandidate simulates a locally gathered candidate.
func (p *PeerConnection) EmitCandidate(c domain.IceCandidate) {
	p.mu.Lock()
	fn := p.onCandidate
	p.mu.Unlock()
	if fn != nil {
		fn(c)
	}
}

func (p *PeerConnection) EmitState(s domain.ConnectionState) {
	p.mu.Lock()
	fn := p.onState
	p.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func (p *PeerConnection) EmitTrack(t core.RemoteTrack) {
	p.mu.Lock()
	fn := p.onTrack
	p.mu.Unlock()
	if fn != nil {
		fn(t)
	}
}

// Candidates returns the remote candidates applied so far.
func (p *PeerConnection) Candidates() []domain.IceCandidate {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.IceCandidate(nil), p.candidates...)
}

func (p *PeerConnection) Transceivers() []domain.MediaKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.MediaKind(nil), p.transceivers...)
}

func (p *PeerConnection) CloseCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Overlapped reports whether two calls were ever in flight at once.
func (p *PeerConnection) Overlapped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.overlapped
}

// Channel is a core.SignalChannel driven by the test.
type Channel struct {
	mu      sync.Mutex
	onDesc  func(domain.SessionDescription)
	onCand  func(domain.IceCandidate)
	sent    []domain.Message
	sendErr error

	started   chan struct{}
	startOnce sync.Once
	end       chan error
}

func NewChannel() *Channel {
	return &Channel{
		started: make(chan struct{}),
		end:     make(chan error, 1),
	}
}

func (c *Channel) OnDescription(fn func(domain.SessionDescription)) {
	c.mu.Lock()
	c.onDesc = fn
	c.mu.Unlock()
}

func (c *Channel) OnCandidate(fn func(domain.IceCandidate)) {
	c.mu.Lock()
	c.onCand = fn
	c.mu.Unlock()
}

// Start blocks until End is called or ctx is done.
func (c *Channel) Start(ctx context.Context) error {
	c.startOnce.Do(func() { close(c.started) })
	select {
	case <-ctx.Done():
		return nil
	case err := <-c.end:
		return err
	}
}

func (c *Channel) SendOutbound(msg domain.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, msg)
	return nil
}

// Started is closed once Start has been called.
func (c *Channel) Started() <-chan struct{} { return c.started }

// End makes Start return err.
func (c *Channel) End(err error) { c.end <- err }

func (c *Channel) FailSends(err error) {
	c.mu.Lock()
	c.sendErr = err
	c.mu.Unlock()
}

func (c *Channel) DeliverDescription(d domain.SessionDescription) {
	c.mu.Lock()
	fn := c.onDesc
	c.mu.Unlock()
	fn(d)
}

func (c *Channel) DeliverCandidate(cand domain.IceCandidate) {
	c.mu.Lock()
	fn := c.onCand
	c.mu.Unlock()
	fn(cand)
}

func (c *Channel) Sent() []domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Message(nil), c.sent...)
}

// Offer builds a remote offer message.
func Offer() domain.SessionDescription {
	return domain.SessionDescription{Type: domain.SDPTypeOffer, SDP: "v=0 remote offer"}
}

func Candidate(name string) domain.IceCandidate {
	return domain.IceCandidate{SDPMid: "0", Candidate: name}
}
