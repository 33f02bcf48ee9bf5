package atmt

import (
	"sync"
	"time"
)

type fakePacket struct {
	kind int
	t    time.Time
}

func (p *fakePacket) Summary() string { return "pkt" }
func (p *fakePacket) Copy() Packet {
	c := *p
	return &c
}
func (p *fakePacket) SetTime(t time.Time) { p.t = t }

// fakeListenSocket is backed by an ObjectPipe so tests can push packets
// and the dispatch loop can poll a real descriptor for them.
type fakeListenSocket struct {
	pipe *ObjectPipe
}

func newFakeListenSocket() *fakeListenSocket {
	p, err := NewObjectPipe()
	if err != nil {
		panic(err)
	}
	return &fakeListenSocket{pipe: p}
}

func (f *fakeListenSocket) Push(pkt Packet) { f.pipe.Send(pkt) }

func (f *fakeListenSocket) Recv(maxBytes int) (Packet, error) {
	v, err := f.pipe.Recv()
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v.(Packet), nil
}

func (f *fakeListenSocket) Descriptor() int { return f.pipe.Descriptor() }
func (f *fakeListenSocket) Close() error    { return f.pipe.Close() }

type fakeSendSocket struct {
	mu   sync.Mutex
	sent []Packet
}

func (f *fakeSendSocket) Send(pkt Packet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, pkt)
	return nil
}

func (f *fakeSendSocket) Sent() []Packet {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Packet, len(f.sent))
	copy(out, f.sent)
	return out
}
