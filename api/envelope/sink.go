package envelope

import "sync"

// MemorySink keeps captured bodies in memory. It is safe for concurrent use.
type MemorySink struct {
	mu       sync.Mutex
	captures []Capture
}

// Capture is one body recorded by a MemorySink.
type Capture struct {
	Label string
	Body  []byte
}

// Capture implements interfaces.DiagnosticSink.
func (s *MemorySink) Capture(label string, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.captures = append(s.captures, Capture{Label: label, Body: append([]byte(nil), body...)})
}

// Captures returns a copy of everything recorded so far.
func (s *MemorySink) Captures() []Capture {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Capture(nil), s.captures...)
}
