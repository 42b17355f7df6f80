package session

import "sync"

// PacketStore holds the encoded packets of the active session in append
// order. It has a single producer (the capture goroutine) and is drained
// exactly once per session, after capture has stopped.
type PacketStore struct {
	mu      sync.Mutex
	packets [][]byte
}

// NewPacketStore returns an empty store.
func NewPacketStore() *PacketStore {
	return &PacketStore{}
}

// Append adds one encoded packet to the end of the sequence. The store
// takes ownership of the slice.
func (s *PacketStore) Append(packet []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packets = append(s.packets, packet)
}

// Len returns the number of stored packets.
func (s *PacketStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.packets)
}

// DrainInOrder removes and returns every stored packet in append order.
// The store is empty afterwards and ready for the next session.
func (s *PacketStore) DrainInOrder() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	packets := s.packets
	s.packets = nil
	return packets
}
