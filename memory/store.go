package memory

import (
	"fmt"
)

// SliceStore is a ByteStore over a plain byte slice.
type SliceStore struct {
	data []byte
}

// NewSliceStore allocates a zero-filled store of size bytes.
func NewSliceStore(size uint32) *SliceStore {
	return &SliceStore{data: make([]byte, size)}
}

func (s *SliceStore) check(offset, length uint32) error {
	if uint64(offset)+uint64(length) > uint64(len(s.data)) {
		return fmt.Errorf("memory access out of bounds: offset=%d, length=%d", offset, length)
	}
	return nil
}

// Read copies length bytes starting at offset.
func (s *SliceStore) Read(offset uint32, length uint32) ([]byte, error) {
	if err := s.check(offset, length); err != nil {
		return nil, err
	}
	out := make([]byte, length)
	copy(out, s.data[offset:offset+length])
	return out, nil
}

// Write copies data to offset.
func (s *SliceStore) Write(offset uint32, data []byte) error {
	if err := s.check(offset, uint32(len(data))); err != nil {
		return err
	}
	copy(s.data[offset:], data)
	return nil
}

// ReadU8 reads one byte.
func (s *SliceStore) ReadU8(offset uint32) (uint8, error) {
	if err := s.check(offset, 1); err != nil {
		return 0, err
	}
	return s.data[offset], nil
}

// WriteU8 writes one byte.
func (s *SliceStore) WriteU8(offset uint32, value uint8) error {
	if err := s.check(offset, 1); err != nil {
		return err
	}
	s.data[offset] = value
	return nil
}

// Reset zero-fills the store.
func (s *SliceStore) Reset() error {
	clear(s.data)
	return nil
}

// Size returns the store size in bytes.
func (s *SliceStore) Size() uint32 {
	return uint32(len(s.data))
}
