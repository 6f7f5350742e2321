package subscriber

import (
	"testing"

	"github.com/Iron-Ham/fanout/internal/channel"
	"github.com/Iron-Ham/fanout/internal/envelope"
	"github.com/Iron-Ham/fanout/internal/errors"
)

func TestSubscriber(t *testing.T) {
	reg := channel.NewRegistry()
	ch, err := reg.Open("testing0", channel.DefaultConfig())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer func() { _ = ch.Close() }()

	w, err := ch.NewWriter()
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	for i := uint64(0); i < 3; i++ {
		if err := w.Write(envelope.New(i, envelope.Tick)); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	s, err := Bind(ch, "testing0")
	if err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	if s.ID() != "testing0" {
		t.Errorf("ID() = %q", s.ID())
	}

	got, err := s.Drain()
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("history replay returned %d envelopes, want 3", len(got))
	}

	got, err = s.Drain()
	if err != nil || len(got) != 0 {
		t.Errorf("Drain() = %v, %v; want empty, nil", got, err)
	}

	st, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if st.Received != 3 || st.Dropped != 0 {
		t.Errorf("Stats() = %+v", st)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := s.Drain(); !errors.Is(err, errors.ErrChannelClosed) {
		t.Errorf("Drain after Close = %v, want ErrChannelClosed", err)
	}
}
