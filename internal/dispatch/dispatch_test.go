package dispatch

import (
	"encoding/json"
	"strings"
	"testing"

	"overlaycast/alert"
	"overlaycast/internal/attachment"
	"overlaycast/internal/logging"
	"overlaycast/internal/registry"
)

type captureSubscriber struct {
	received [][]byte
}

func (c *captureSubscriber) Send(message []byte) error {
	c.received = append(c.received, message)
	return nil
}

func newTestDispatcher(hook Hook) (*Dispatcher, *attachment.Store, *registry.Registry) {
	logger := logging.NewLogger()
	store := attachment.NewStore(logger)
	reg := registry.New(logger)
	return New(store, reg, logger, nil, hook), store, reg
}

func lastPayload(t *testing.T, sub *captureSubscriber) alert.Message {
	t.Helper()
	if len(sub.received) == 0 {
		t.Fatalf("expected a delivered payload")
	}
	var msg alert.Message
	if err := json.Unmarshal(sub.received[len(sub.received)-1], &msg); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	return msg
}

func TestDispatchFilterKeyScenario(t *testing.T) {
	d, _, reg := newTestDispatcher(nil)
	c1 := &captureSubscriber{}
	reg.Register("follow", c1)

	d.Dispatch("follow", alert.New("hi"))
	msg := lastPayload(t, c1)
	if msg.Text != "hi" {
		t.Fatalf("expected text hi, got %q", msg.Text)
	}

	c2 := &captureSubscriber{}
	reg.Register("all", c2)
	d.Dispatch("follow", alert.New("hi"))
	if len(c2.received) != 0 {
		t.Fatalf("subscriber under all must not receive follow alerts")
	}
	if len(c1.received) != 2 {
		t.Fatalf("expected two deliveries to follow subscriber, got %d", len(c1.received))
	}
}

func TestDispatchAbsoluteURLPassthrough(t *testing.T) {
	d, _, reg := newTestDispatcher(nil)
	sub := &captureSubscriber{}
	reg.Register("all", sub)

	d.Dispatch("all", alert.New("x", alert.WithImage("http://cdn.example/x.png")))
	msg := lastPayload(t, sub)
	if msg.Image == nil || *msg.Image != "http://cdn.example/x.png" {
		t.Fatalf("absolute URL must pass through unchanged, got %v", msg.Image)
	}
}

func TestDispatchAttachmentNameRewritten(t *testing.T) {
	d, store, reg := newTestDispatcher(nil)
	sub := &captureSubscriber{}
	reg.Register("all", sub)

	key, err := store.AddBytes("pic", "/tmp/alert.png", []byte("img"))
	if err != nil {
		t.Fatalf("AddBytes failed: %v", err)
	}

	d.Dispatch("all", alert.New("x", alert.WithImage("pic"), alert.WithAudio("ding.ogg")))
	msg := lastPayload(t, sub)
	if msg.Image == nil || *msg.Image != UploadRoute+key {
		t.Fatalf("expected image %q, got %v", UploadRoute+key, msg.Image)
	}
	// Unregistered references are still routed through the upload path
	if msg.Audio == nil || *msg.Audio != UploadRoute+"ding.ogg" {
		t.Fatalf("expected audio %q, got %v", UploadRoute+"ding.ogg", msg.Audio)
	}
}

func TestDispatchNilMediaStaysNil(t *testing.T) {
	d, _, reg := newTestDispatcher(nil)
	sub := &captureSubscriber{}
	reg.Register("all", sub)

	d.Dispatch("all", alert.New("no media"))
	raw := string(sub.received[0])
	if !strings.Contains(raw, `"image":null`) || !strings.Contains(raw, `"audio":null`) {
		t.Fatalf("expected null media fields, got %s", raw)
	}
}

func TestDispatchHook(t *testing.T) {
	var hookKey string
	var hookMsg alert.Message
	d, store, reg := newTestDispatcher(func(filterKey string, msg alert.Message) {
		hookKey = filterKey
		hookMsg = msg
	})
	sub := &captureSubscriber{}
	reg.Register("follow", sub)

	key, err := store.AddBytes("pic", "/tmp/p.png", []byte("img"))
	if err != nil {
		t.Fatalf("AddBytes failed: %v", err)
	}
	d.Dispatch("follow", alert.New("evt", alert.WithImage("pic")))

	if hookKey != "follow" {
		t.Fatalf("hook got filter key %q", hookKey)
	}
	// The hook sees the final payload, after media normalization
	if hookMsg.Image == nil || *hookMsg.Image != UploadRoute+key {
		t.Fatalf("hook must observe the normalized payload, got %v", hookMsg.Image)
	}
}

func TestDispatchNoSubscribersIsFireAndForget(t *testing.T) {
	d, _, _ := newTestDispatcher(nil)
	// Must not panic or error with nobody listening
	d.Dispatch("follow", alert.New("hello?"))
}
