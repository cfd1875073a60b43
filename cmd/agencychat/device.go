package main

import (
	"context"
	"errors"
	"os"
	"sync"

	"agency-chat/internal/messaging"
)

// fileDevice plays a pre-recorded audio file in place of a microphone.
type fileDevice struct {
	path string
}

func (d *fileDevice) Open(ctx context.Context) (messaging.AudioStream, error) {
	data, err := os.ReadFile(d.path)
	if err != nil {
		return nil, err
	}
	return &fileStream{pending: data}, nil
}

// fileStream yields the whole file on the first Flush while not paused.
type fileStream struct {
	mu      sync.Mutex
	pending []byte
	paused  bool
	closed  bool
}

var errStreamClosed = errors.New("audio stream closed")

func (s *fileStream) Pause() error {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
	return nil
}

func (s *fileStream) Resume() error {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
	return nil
}

func (s *fileStream) Flush() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errStreamClosed
	}
	if s.paused {
		return nil, nil
	}
	out := s.pending
	s.pending = nil
	return out, nil
}

func (s *fileStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.pending = nil
	s.mu.Unlock()
	return nil
}
