//go:build !rp2040 && !rp2350

package updater

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"
)

func TestEventsStreamDeliversUpload(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(f.baseURL(t), "http") + "/events"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// The handshake response races the hub registration; wait it out
	// so the upload below cannot broadcast into an empty hub.
	deadline := time.Now().Add(2 * time.Second)
	for {
		f.svc.hub.mu.Lock()
		n := len(f.svc.hub.clients)
		f.svc.hub.mu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("watcher never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	image := bytes.Repeat([]byte{7}, 5_000)
	resp, err := http.Post(f.baseURL(t)+"/update", "application/octet-stream", bytes.NewReader(image))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("status %d: %s", resp.StatusCode, body)
	}

	sawBegin := false
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var ev wsEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("bad frame %q: %v", data, err)
		}
		switch ev.Kind {
		case "begin":
			sawBegin = true
		case "end":
			if !sawBegin {
				t.Fatal("end arrived before begin")
			}
			if ev.End == nil || !ev.End.OK || ev.End.Bytes != int64(len(image)) {
				t.Fatalf("unexpected end frame: %+v", ev.End)
			}
			return
		}
	}
}
