// Package secure keeps credentials encrypted in memory between uses.
//
// Service-account passwords live in a memguard enclave from the moment they
// are read out of the secrets store until the identity client needs them
// for an authentication request. Plaintext is only exposed inside Reveal.
package secure

import (
	"sync"

	"github.com/awnumar/memguard"
)

// SecureBuffer wraps a memguard.Enclave holding one secret value.
type SecureBuffer struct {
	enclave   *memguard.Enclave
	size      int
	mu        sync.RWMutex
	destroyed bool
}

// NewSecureBuffer seals data into an enclave. memguard wipes data after
// copying it, so callers must not reuse the slice.
func NewSecureBuffer(data []byte) *SecureBuffer {
	size := len(data)
	if size == 0 {
		// memguard refuses to seal empty input
		return &SecureBuffer{}
	}
	return &SecureBuffer{
		enclave: memguard.NewEnclave(data),
		size:    size,
	}
}

// NewSecureString seals a string value.
func NewSecureString(s string) *SecureBuffer {
	return NewSecureBuffer([]byte(s))
}

// Empty reports whether the buffer holds no data (or was destroyed).
func (s *SecureBuffer) Empty() bool {
	if s == nil {
		return true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.destroyed || s.size == 0
}

// Open decrypts the enclave into a locked buffer. The caller must call
// Destroy on the returned buffer.
func (s *SecureBuffer) Open() (*memguard.LockedBuffer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.destroyed || s.enclave == nil {
		return memguard.NewBufferFromBytes([]byte{}), nil
	}
	return s.enclave.Open()
}

// Reveal opens the buffer, passes the plaintext to fn, and wipes it again.
// fn must not retain the slice.
func (s *SecureBuffer) Reveal(fn func([]byte) error) error {
	locked, err := s.Open()
	if err != nil {
		return err
	}
	defer locked.Destroy()
	return fn(locked.Bytes())
}

// Destroy drops the enclave. Safe to call more than once.
func (s *SecureBuffer) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return
	}
	s.enclave = nil
	s.size = 0
	s.destroyed = true
}
