// internal/logger/file.go
package logger

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileSink - потокобезопасная запись в файл с буферизацией и периодическим сбросом.
// Реализует zapcore.WriteSyncer.
type FileSink struct {
	mu     sync.Mutex
	writer *bufio.Writer
	file   *os.File
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once

	written uint64
	flushes uint64
}

func NewFileSink(path string, flushInterval time.Duration) (*FileSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	s := &FileSink{
		writer: bufio.NewWriter(file),
		file:   file,
		ticker: time.NewTicker(flushInterval),
		done:   make(chan struct{}),
	}
	go s.periodicFlush()
	return s, nil
}

func (s *FileSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.writer.Write(p)
	if err != nil {
		return n, fmt.Errorf("failed to write data: %w", err)
	}
	s.written++
	return n, nil
}

// Sync flushes buffered data and fsyncs the file.
func (s *FileSink) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

func (s *FileSink) flushLocked() error {
	if err := s.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush buffer: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync file: %w", err)
	}
	s.flushes++
	return nil
}

func (s *FileSink) periodicFlush() {
	for {
		select {
		case <-s.ticker.C:
			_ = s.Sync()
		case <-s.done:
			return
		}
	}
}

// Close stops the flusher and writes out everything buffered.
func (s *FileSink) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		s.ticker.Stop()

		s.mu.Lock()
		defer s.mu.Unlock()
		if ferr := s.writer.Flush(); ferr != nil {
			err = fmt.Errorf("failed to flush on close: %w", ferr)
			return
		}
		err = s.file.Close()
	})
	return err
}

// Stats returns the number of writes and flushes so far.
func (s *FileSink) Stats() (writes, flushes uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written, s.flushes
}
