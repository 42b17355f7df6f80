// Package session owns the record-then-play lifecycle. A single control
// loop goroutine serializes every state transition; commands and playback
// completions reach it as messages, never as cross-goroutine callbacks.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/soundbench/voiceloop/internal/observe"
	"github.com/soundbench/voiceloop/internal/pipeline"
	"github.com/soundbench/voiceloop/pkg/audio"
)

var (
	// ErrPrecondition reports that the input device or its permission is
	// not ready. The session stays idle; the user may retry.
	ErrPrecondition = errors.New("session: capture precondition not met")

	// ErrNotIdle reports a start command while a session is already active.
	ErrNotIdle = errors.New("session: not idle")

	// ErrNotRecording reports a stop command outside the recording state.
	ErrNotRecording = errors.New("session: not recording")

	// ErrClosed reports a command after Close.
	ErrClosed = errors.New("session: controller closed")
)

// subscriberBuffer is the event capacity per subscriber. A subscriber that
// falls further behind loses its oldest event, never the newest.
const subscriberBuffer = 16

type cmdKind int

const (
	cmdStart cmdKind = iota
	cmdStop
	cmdToggle
)

type command struct {
	kind  cmdKind
	reply chan error
}

// Config carries the collaborators of a Controller.
type Config struct {
	CaptureDevice  audio.CaptureDevice
	PlaybackDevice audio.PlaybackDevice
	Encoder        audio.Encoder
	Decoder        audio.Decoder

	// Format is the capture format; FrameSize is the samples per frame
	// handed to the encoder.
	Format    audio.Format
	FrameSize int

	// OutputFormat is the playback format. Zero value means same as Format.
	OutputFormat audio.Format

	// Metrics may be nil, in which case the process-wide default is used.
	Metrics *observe.Metrics
}

// Controller drives the Idle/Recording/Decoding/Playing state machine.
// All exported methods are safe for concurrent use.
type Controller struct {
	enc      audio.Encoder
	dec      audio.Decoder
	capDev   audio.CaptureDevice
	capture  *pipeline.Capture
	playback *pipeline.Playback
	store    *PacketStore
	metrics  *observe.Metrics

	cmds         chan command
	playbackDone chan pipeline.Completion
	closed       chan struct{}
	done         chan struct{}
	closeOnce    sync.Once

	mu      sync.Mutex
	subs    map[int]chan StatusEvent
	nextSub int
	current StatusEvent
}

// NewController wires the pipelines together and starts the control loop.
func NewController(cfg Config) *Controller {
	m := cfg.Metrics
	if m == nil {
		m = observe.DefaultMetrics()
	}
	c := &Controller{
		enc:          cfg.Encoder,
		dec:          cfg.Decoder,
		capDev:       cfg.CaptureDevice,
		store:        NewPacketStore(),
		metrics:      m,
		cmds:         make(chan command),
		playbackDone: make(chan pipeline.Completion, 1),
		closed:       make(chan struct{}),
		done:         make(chan struct{}),
		subs:         make(map[int]chan StatusEvent),
		current:      StatusEvent{State: StateIdle, Status: statusText(StateIdle)},
	}
	out := cfg.OutputFormat
	if out.SampleRate == 0 {
		out = cfg.Format
	}
	c.capture = pipeline.NewCapture(cfg.CaptureDevice, cfg.Format, cfg.FrameSize, c.handleFrame, m)
	c.playback = pipeline.NewPlayback(cfg.PlaybackDevice, out, cfg.FrameSize, m)
	go c.loop()
	return c
}

// handleFrame runs on the capture goroutine. The encoder is only ever
// touched from here, so its single-stream constraint holds.
func (c *Controller) handleFrame(frame audio.AudioFrame) {
	packet, err := c.enc.Encode(frame)
	if err != nil {
		c.metrics.EncodeErrors.Add(context.Background(), 1)
		slog.Warn("dropping frame, encode failed", "err", err)
		return
	}
	c.metrics.PacketsEncoded.Add(context.Background(), 1)
	c.store.Append(packet)
}

// StartRecording begins a new session. It fails with ErrNotIdle if a
// session is active, with a wrapped ErrPrecondition if the input device is
// not ready, and with pipeline.ErrCaptureStart if the stream will not open.
func (c *Controller) StartRecording() error {
	return c.do(cmdStart)
}

// StopAndPlay stops capture, decodes every stored packet in order and plays
// the result. It fails with ErrNotRecording outside the recording state.
// A session with zero packets still passes through the playing state and
// returns to idle via its completion.
func (c *Controller) StopAndPlay() error {
	return c.do(cmdStop)
}

// Toggle starts a recording when idle and stops-and-plays when recording.
// This is the single user action of the system.
func (c *Controller) Toggle() error {
	return c.do(cmdToggle)
}

func (c *Controller) do(kind cmdKind) error {
	cmd := command{kind: kind, reply: make(chan error, 1)}
	select {
	case c.cmds <- cmd:
	case <-c.closed:
		return ErrClosed
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-c.closed:
		return ErrClosed
	}
}

// Snapshot returns the most recently published status.
func (c *Controller) Snapshot() StatusEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Subscribe registers an observer of state transitions. The channel is
// primed with the current status and receives one event per transition.
// A slow subscriber loses its oldest buffered event rather than blocking
// the control loop. The returned cancel func unregisters and closes the
// channel; it is safe to call twice.
func (c *Controller) Subscribe() (<-chan StatusEvent, func()) {
	ch := make(chan StatusEvent, subscriberBuffer)
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	ch <- c.current
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Close stops the control loop and the capture pipeline and closes every
// subscriber channel. Safe to call twice. A playback in flight keeps
// rendering on its own goroutine; its completion is discarded.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		<-c.done
		c.capture.Stop()
		c.mu.Lock()
		for id, sub := range c.subs {
			delete(c.subs, id)
			close(sub)
		}
		c.mu.Unlock()
	})
}

type loopState struct {
	state          State
	sessionID      string
	recordingStart time.Time
}

func (c *Controller) loop() {
	defer close(c.done)
	ls := &loopState{state: StateIdle}
	for {
		select {
		case cmd := <-c.cmds:
			cmd.reply <- c.handleCommand(ls, cmd.kind)
		case <-c.playbackDone:
			c.transition(ls, StateIdle)
		case <-c.closed:
			return
		}
	}
}

func (c *Controller) handleCommand(ls *loopState, kind cmdKind) error {
	switch kind {
	case cmdStart:
		if ls.state != StateIdle {
			return fmt.Errorf("%w: state is %v", ErrNotIdle, ls.state)
		}
		return c.startRecording(ls)
	case cmdStop:
		if ls.state != StateRecording {
			return fmt.Errorf("%w: state is %v", ErrNotRecording, ls.state)
		}
		return c.stopAndPlay(ls)
	case cmdToggle:
		switch ls.state {
		case StateIdle:
			return c.startRecording(ls)
		case StateRecording:
			return c.stopAndPlay(ls)
		default:
			return fmt.Errorf("%w: state is %v", ErrNotIdle, ls.state)
		}
	default:
		return fmt.Errorf("session: unknown command %d", kind)
	}
}

func (c *Controller) startRecording(ls *loopState) error {
	if err := c.capDev.Available(); err != nil {
		return fmt.Errorf("%w: %w", ErrPrecondition, err)
	}
	if err := c.capture.Start(); err != nil {
		return err
	}
	ls.sessionID = uuid.NewString()
	ls.recordingStart = time.Now()
	c.metrics.RecordSessionStarted(context.Background())
	slog.Info("recording started", "session_id", ls.sessionID)
	c.transition(ls, StateRecording)
	return nil
}

func (c *Controller) stopAndPlay(ls *loopState) error {
	c.capture.Stop()
	c.metrics.RecordingDuration.Record(context.Background(),
		time.Since(ls.recordingStart).Seconds())
	c.transition(ls, StateDecoding)

	packets := c.store.DrainInOrder()
	frames := make([]audio.AudioFrame, 0, len(packets))
	for i, packet := range packets {
		c.metrics.DecodeAttempts.Add(context.Background(), 1)
		frame, err := c.dec.Decode(packet)
		if err != nil {
			c.metrics.DecodeErrors.Add(context.Background(), 1)
			slog.Warn("skipping undecodable packet", "index", i, "err", err)
			continue
		}
		frames = append(frames, frame)
	}
	slog.Info("session decoded",
		"session_id", ls.sessionID,
		"packets", len(packets),
		"frames", len(frames))

	c.playback.Schedule(frames, func(comp pipeline.Completion) {
		if comp.Truncated {
			slog.Warn("playback truncated", "played", comp.Played)
		}
		select {
		case c.playbackDone <- comp:
		case <-c.closed:
		}
	})
	if err := c.playback.Play(); err != nil {
		// Queue discarded by the failed attempt; abort to idle.
		c.transition(ls, StateIdle)
		return err
	}
	c.transition(ls, StatePlaying)
	return nil
}

// transition publishes the new state to metrics and subscribers. Only the
// control loop calls it.
func (c *Controller) transition(ls *loopState, next State) {
	ls.state = next
	c.metrics.RecordStateTransition(context.Background(), next.String())
	ev := StatusEvent{
		SessionID:       ls.sessionID,
		State:           next,
		Status:          statusText(next),
		RecordingActive: next == StateRecording,
		PlaybackActive:  next == StatePlaying,
		Packets:         c.store.Len(),
	}
	c.mu.Lock()
	c.current = ev
	for _, sub := range c.subs {
		select {
		case sub <- ev:
		default:
			select {
			case <-sub:
			default:
			}
			select {
			case sub <- ev:
			default:
			}
		}
	}
	c.mu.Unlock()
}
