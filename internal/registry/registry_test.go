package registry

import (
	"errors"
	"testing"

	errspkg "github.com/mculink/mculink/internal/errors"
	"github.com/mculink/mculink/internal/frame"
)

func passthroughDecode(payload []byte) (any, error) { return payload, nil }
func passthroughEncode(payload []byte) ([]byte, error) { return payload, nil }

func TestRegisterAndLookup(t *testing.T) {
	reg := New()

	codec := Codec{
		Name:           "test.Status",
		PublishChannel: "out/status",
		Decode:         passthroughDecode,
	}

	if err := reg.Register(0x0030, codec); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	got, ok := reg.Lookup(0x0030)
	if !ok {
		t.Fatal("Lookup() did not find registered topic")
	}
	if got.Name != "test.Status" {
		t.Errorf("Name = %q, want %q", got.Name, "test.Status")
	}
	if got.PublishChannel != "out/status" {
		t.Errorf("PublishChannel = %q, want %q", got.PublishChannel, "out/status")
	}
}

func TestLookupUnknownTopic(t *testing.T) {
	reg := New()

	// Unknown topics are a normal runtime condition, not an error.
	_, ok := reg.Lookup(0xbeef)
	if ok {
		t.Error("Lookup() found a codec for an unregistered topic")
	}
}

func TestRegisterDuplicateTopic(t *testing.T) {
	reg := New()

	codec := Codec{
		Name:           "test.A",
		PublishChannel: "out/a",
		Decode:         passthroughDecode,
	}

	if err := reg.Register(0x0010, codec); err != nil {
		t.Fatalf("first Register() error = %v", err)
	}

	err := reg.Register(0x0010, codec)
	if !errors.Is(err, errspkg.ErrDuplicateTopic) {
		t.Errorf("second Register() error = %v, want ErrDuplicateTopic", err)
	}
	if reg.Len() != 1 {
		t.Errorf("Len() = %d after duplicate, want 1", reg.Len())
	}
}

func TestRegisterValidation(t *testing.T) {
	tests := []struct {
		name    string
		codec   Codec
		wantErr error
	}{
		{
			name:    "no channels",
			codec:   Codec{Name: "test.Empty"},
			wantErr: errspkg.ErrChannelRequired,
		},
		{
			name: "publish channel without decode",
			codec: Codec{
				Name:           "test.NoDecode",
				PublishChannel: "out/x",
			},
			wantErr: errspkg.ErrCodecRequired,
		},
		{
			name: "subscribe channel without encode",
			codec: Codec{
				Name:             "test.NoEncode",
				SubscribeChannel: "in/x",
			},
			wantErr: errspkg.ErrCodecRequired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := New()
			err := reg.Register(0x0010, tt.codec)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Register() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRegisterBidirectional(t *testing.T) {
	reg := New()

	codec := Codec{
		Name:             "test.Actuators",
		PublishChannel:   "out/actuators",
		SubscribeChannel: "in/actuators",
		Decode:           passthroughDecode,
		Encode:           passthroughEncode,
	}

	if err := reg.Register(0x0010, codec); err != nil {
		t.Errorf("Register() error = %v", err)
	}
}

func TestEntriesSortedByTopic(t *testing.T) {
	reg := New()

	ids := []frame.TopicID{0x0050, 0x0010, 0x0030}
	for _, id := range ids {
		codec := Codec{
			Name:           "test",
			PublishChannel: "out/x",
			Decode:         passthroughDecode,
		}
		if err := reg.Register(id, codec); err != nil {
			t.Fatalf("Register(%v) error = %v", id, err)
		}
	}

	entries := reg.Entries()
	if len(entries) != 3 {
		t.Fatalf("Entries() len = %d, want 3", len(entries))
	}
	want := []frame.TopicID{0x0010, 0x0030, 0x0050}
	for i, e := range entries {
		if e.Topic != want[i] {
			t.Errorf("entries[%d].Topic = %v, want %v", i, e.Topic, want[i])
		}
	}
}

func TestLen(t *testing.T) {
	reg := New()
	if reg.Len() != 0 {
		t.Errorf("Len() = %d, want 0", reg.Len())
	}

	codec := Codec{Name: "t", PublishChannel: "out/t", Decode: passthroughDecode}
	if err := reg.Register(0x0001, codec); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if reg.Len() != 1 {
		t.Errorf("Len() = %d, want 1", reg.Len())
	}
}
