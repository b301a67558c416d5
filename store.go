package cppsim

// ByteStore is the flat byte array underneath simulated memory. Every read and
// write of simulated storage goes through it.
type ByteStore interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	ReadU8(offset uint32) (uint8, error)
	WriteU8(offset uint32, value uint8) error
	// Reset zero-fills the whole store.
	Reset() error
}

// StoreSizer provides the addressable size of a ByteStore in bytes.
type StoreSizer interface {
	Size() uint32
}
