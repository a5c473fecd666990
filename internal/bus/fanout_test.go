package bus

import (
	"errors"
	"testing"
)

type failingSink struct{ err error }

func (f *failingSink) Publish(string, interface{}) error { return f.err }
func (f *failingSink) Close() error                      { return f.err }

func TestFanoutDeliversToAllSinks(t *testing.T) {
	m1, m2 := NewMemory(), NewMemory()
	sub1 := m1.Subscribe(ChannelExit)
	sub2 := m2.Subscribe(ChannelExit)

	f := NewFanout(m1, nil, m2)
	if err := f.Publish(ChannelExit, Exit{AgentID: "a", Success: true}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	for i, sub := range []Subscription{sub1, sub2} {
		select {
		case ev := <-sub.Events:
			if ev.Payload.(Exit).AgentID != "a" {
				t.Errorf("sink %d payload = %+v", i, ev.Payload)
			}
		default:
			t.Errorf("sink %d received nothing", i)
		}
	}
}

func TestFanoutContinuesPastFailingSink(t *testing.T) {
	boom := errors.New("broker down")
	m := NewMemory()
	sub := m.Subscribe(ChannelContent)

	f := NewFanout(&failingSink{err: boom}, m)
	err := f.Publish(ChannelContent, Content{AgentID: "a"})
	if !errors.Is(err, boom) {
		t.Errorf("Publish error = %v, want broker error surfaced", err)
	}

	select {
	case <-sub.Events:
	default:
		t.Error("healthy sink skipped after failing sink")
	}
}
