package core

// Frame is one encoded outbound event.
type Frame []byte

// SignalConnection abstracts the live messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
