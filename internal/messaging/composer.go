package messaging

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"agency-chat/internal/clock"
	"agency-chat/internal/model"
)

// Sender is what the composer needs from the message store.
type Sender interface {
	Append(ctx context.Context, content string, kind model.Kind) error
	UploadMedia(ctx context.Context, filename string, data []byte) (string, error)
}

// AudioDevice hands out exclusive capture streams, e.g. a microphone.
type AudioDevice interface {
	Open(ctx context.Context) (AudioStream, error)
}

// AudioStream is one open capture session. Audio captured while paused is
// discarded by the device.
type AudioStream interface {
	Pause() error
	Resume() error
	// Flush returns audio captured since the previous Flush.
	Flush() ([]byte, error)
	// Close releases the device.
	Close() error
}

type RecordingState int

const (
	Idle RecordingState = iota
	Recording
	Paused
	Stopping
)

func (s RecordingState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Paused:
		return "paused"
	case Stopping:
		return "stopping"
	}
	return fmt.Sprintf("RecordingState(%d)", int(s))
}

// RecordingStatus is a snapshot for the recorder UI.
type RecordingStatus struct {
	State   RecordingState
	Elapsed time.Duration
}

// voiceFilename is the name uploaded recordings are stored under; the
// media store keeps only its extension.
const voiceFilename = "recording.webm"

type recording struct {
	state   RecordingState
	stream  AudioStream
	chunks  [][]byte
	elapsed time.Duration // time spent in completed recording spans
	since   time.Time     // start of the current span while Recording
}

// Composer owns the draft and the voice recorder. One upload at a time:
// while an image or voice note is in flight every other send is refused.
type Composer struct {
	sender Sender
	device AudioDevice
	clock  clock.Clock
	log    *slog.Logger

	mu        sync.Mutex
	draft     string
	uploading bool
	rec       recording
}

func NewComposer(sender Sender, device AudioDevice, clk clock.Clock, logger *slog.Logger) *Composer {
	return &Composer{sender: sender, device: device, clock: clk, log: logger}
}

func (c *Composer) SetDraft(text string) {
	c.mu.Lock()
	c.draft = text
	c.mu.Unlock()
}

// InsertText appends s to the draft, e.g. from the emoji picker.
func (c *Composer) InsertText(s string) {
	c.mu.Lock()
	c.draft += s
	c.mu.Unlock()
}

func (c *Composer) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// Uploading reports whether an image or voice note is in flight.
func (c *Composer) Uploading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.uploading
}

// SendText sends the trimmed draft. A blank draft is a no-op that returns
// ErrEmptyContent without touching the store. The draft is cleared
// optimistically and is not restored if the send fails.
func (c *Composer) SendText(ctx context.Context) error {
	c.mu.Lock()
	content := strings.TrimSpace(c.draft)
	if content == "" {
		c.mu.Unlock()
		return ErrEmptyContent
	}
	if c.uploading {
		c.mu.Unlock()
		return ErrUploadInFlight
	}
	c.draft = ""
	c.mu.Unlock()

	return c.sender.Append(ctx, content, model.KindText)
}

// SendImage uploads data and posts the resulting URL as an image message.
func (c *Composer) SendImage(ctx context.Context, filename string, data []byte) error {
	if len(data) == 0 {
		return ErrEmptyContent
	}
	if int64(len(data)) > MaxUploadBytes {
		return ErrTooLarge
	}
	if !c.beginUpload() {
		return ErrUploadInFlight
	}
	defer c.endUpload()

	return c.postMedia(ctx, filename, data, model.KindImage)
}

func (c *Composer) postMedia(ctx context.Context, filename string, data []byte, kind model.Kind) error {
	url, err := c.sender.UploadMedia(ctx, filename, data)
	if err != nil {
		return err
	}
	return c.sender.Append(ctx, url, kind)
}

func (c *Composer) beginUpload() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.uploading {
		return false
	}
	c.uploading = true
	return true
}

func (c *Composer) endUpload() {
	c.mu.Lock()
	c.uploading = false
	c.mu.Unlock()
}

// Recording reports the recorder state and the time spent recording,
// excluding pauses.
func (c *Composer) Recording() RecordingStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := RecordingStatus{State: c.rec.state, Elapsed: c.rec.elapsed}
	if c.rec.state == Recording {
		st.Elapsed += c.clock.Now().Sub(c.rec.since)
	}
	return st
}

// StartRecording acquires the device. On failure the recorder stays idle.
// Open runs under the composer lock and must not block on user input.
func (c *Composer) StartRecording(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rec.state != Idle {
		return ErrInvalidTransition
	}
	if c.uploading {
		return ErrUploadInFlight
	}

	stream, err := c.device.Open(ctx)
	if err != nil {
		return &DeviceError{Err: err}
	}
	c.rec = recording{state: Recording, stream: stream, since: c.clock.Now()}
	return nil
}

func (c *Composer) PauseRecording() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rec.state != Recording {
		return ErrInvalidTransition
	}
	if err := c.collect(); err != nil {
		return err
	}
	if err := c.rec.stream.Pause(); err != nil {
		c.abort()
		return &DeviceError{Err: err}
	}
	c.rec.elapsed += c.clock.Now().Sub(c.rec.since)
	c.rec.state = Paused
	return nil
}

func (c *Composer) ResumeRecording() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rec.state != Paused {
		return ErrInvalidTransition
	}
	if err := c.rec.stream.Resume(); err != nil {
		c.abort()
		return &DeviceError{Err: err}
	}
	c.rec.since = c.clock.Now()
	c.rec.state = Recording
	return nil
}

// CancelRecording discards everything captured and releases the device.
func (c *Composer) CancelRecording() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rec.state != Recording && c.rec.state != Paused {
		return ErrInvalidTransition
	}
	c.abort()
	return nil
}

// SendRecording finalizes the capture, releases the device and posts the
// audio as a voice message. The recorder reports Stopping until the upload
// settles and returns to Idle whatever the outcome.
func (c *Composer) SendRecording(ctx context.Context) error {
	c.mu.Lock()
	if c.rec.state != Recording && c.rec.state != Paused {
		c.mu.Unlock()
		return ErrInvalidTransition
	}
	if c.uploading {
		c.mu.Unlock()
		return ErrUploadInFlight
	}
	if c.rec.state == Recording {
		if err := c.collect(); err != nil {
			c.mu.Unlock()
			return err
		}
	}
	audio := bytes.Join(c.rec.chunks, nil)
	c.release()
	c.rec = recording{state: Stopping}
	c.uploading = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.rec = recording{}
		c.uploading = false
		c.mu.Unlock()
	}()

	if len(audio) == 0 {
		return ErrEmptyContent
	}
	if int64(len(audio)) > MaxUploadBytes {
		return ErrTooLarge
	}
	return c.postMedia(ctx, voiceFilename, audio, model.KindVoice)
}

// Close cancels any recording in progress.
func (c *Composer) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rec.stream != nil {
		c.abort()
	}
}

// collect flushes the stream into the chunk list, aborting the recording
// on a device failure. Callers hold c.mu.
func (c *Composer) collect() error {
	chunk, err := c.rec.stream.Flush()
	if err != nil {
		c.abort()
		return &DeviceError{Err: err}
	}
	if len(chunk) > 0 {
		c.rec.chunks = append(c.rec.chunks, chunk)
	}
	return nil
}

// abort releases the device and resets to Idle. Callers hold c.mu.
func (c *Composer) abort() {
	c.release()
	c.rec = recording{}
}

func (c *Composer) release() {
	if c.rec.stream == nil {
		return
	}
	if err := c.rec.stream.Close(); err != nil {
		c.log.Warn("failed to release audio device", "error", err)
	}
	c.rec.stream = nil
}
