package memory

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
)

const wasmPageSize = 65536

// WazeroStore is a ByteStore backed by the linear memory of a wasm module
// instantiated in wazero. The module exports a single memory and nothing else.
type WazeroStore struct {
	rt   wazero.Runtime
	mod  api.Module
	mem  api.Memory
	size uint32
}

// NewWazeroStore instantiates a memory-only module large enough for size
// bytes. Close must be called to release the runtime.
func NewWazeroStore(ctx context.Context, size uint32) (*WazeroStore, error) {
	pages := (size + wasmPageSize - 1) / wasmPageSize
	if pages == 0 {
		pages = 1
	}

	rt := wazero.NewRuntime(ctx)
	mod, err := rt.Instantiate(ctx, memoryModule(pages))
	if err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("instantiate memory module: %w", err)
	}

	mem := mod.ExportedMemory("memory")
	if mem == nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("memory module exports no memory")
	}

	return &WazeroStore{rt: rt, mod: mod, mem: mem, size: size}, nil
}

// memoryModule encodes a wasm binary with one memory of the given pages
// exported as "memory".
func memoryModule(pages uint32) []byte {
	bin := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	// memory section: one memory, min pages, no max
	memSec := appendULEB(appendULEB([]byte{0x01}, 0x00), pages)
	bin = append(bin, 0x05)
	bin = appendULEB(bin, uint32(len(memSec)))
	bin = append(bin, memSec...)

	// export section: "memory" -> memory 0
	expSec := []byte{0x01, 0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00}
	bin = append(bin, 0x07)
	bin = appendULEB(bin, uint32(len(expSec)))
	bin = append(bin, expSec...)
	return bin
}

func appendULEB(b []byte, v uint32) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			c |= 0x80
		}
		b = append(b, c)
		if v == 0 {
			return b
		}
	}
}

func (w *WazeroStore) check(offset, length uint32) error {
	if uint64(offset)+uint64(length) > uint64(w.size) {
		return fmt.Errorf("memory access out of bounds: offset=%d, length=%d", offset, length)
	}
	return nil
}

// Read copies length bytes starting at offset out of linear memory.
func (w *WazeroStore) Read(offset uint32, length uint32) ([]byte, error) {
	if err := w.check(offset, length); err != nil {
		return nil, err
	}
	view, ok := w.mem.Read(offset, length)
	if !ok {
		return nil, fmt.Errorf("memory read out of bounds: offset=%d, length=%d", offset, length)
	}
	out := make([]byte, length)
	copy(out, view)
	return out, nil
}

// Write copies data into linear memory.
func (w *WazeroStore) Write(offset uint32, data []byte) error {
	if err := w.check(offset, uint32(len(data))); err != nil {
		return err
	}
	if !w.mem.Write(offset, data) {
		return fmt.Errorf("memory write out of bounds: offset=%d, length=%d", offset, len(data))
	}
	return nil
}

// ReadU8 reads an unsigned 8-bit value.
func (w *WazeroStore) ReadU8(offset uint32) (uint8, error) {
	if err := w.check(offset, 1); err != nil {
		return 0, err
	}
	v, ok := w.mem.ReadByte(offset)
	if !ok {
		return 0, fmt.Errorf("memory read out of bounds: offset=%d", offset)
	}
	return v, nil
}

// WriteU8 writes an unsigned 8-bit value.
func (w *WazeroStore) WriteU8(offset uint32, value uint8) error {
	if err := w.check(offset, 1); err != nil {
		return err
	}
	if !w.mem.WriteByte(offset, value) {
		return fmt.Errorf("memory write out of bounds: offset=%d", offset)
	}
	return nil
}

// Reset zero-fills the addressable part of linear memory.
func (w *WazeroStore) Reset() error {
	if !w.mem.Write(0, make([]byte, w.size)) {
		return fmt.Errorf("memory reset failed: size=%d", w.size)
	}
	return nil
}

// Size returns the addressable size in bytes.
func (w *WazeroStore) Size() uint32 {
	return w.size
}

// Close releases the wazero runtime.
func (w *WazeroStore) Close(ctx context.Context) error {
	if err := w.rt.Close(ctx); err != nil {
		Logger().Warn("failed to close wazero runtime", zap.Error(err))
		return err
	}
	return nil
}
