package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"nhooyr.io/websocket"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream upload events from a device",
	Long: `Stream the device's update events over its /events websocket and
print them as they happen. Ends when the socket closes, which a device
does when it reboots into new firmware.`,
	RunE: runWatch,
}

// event mirrors the frames the device broadcasts on /events.
type event struct {
	Kind  string `json:"kind"`
	Begin *struct {
		Total int64 `json:"total"`
	} `json:"begin,omitempty"`
	Progress *struct {
		BytesDone  int64 `json:"bytes_done"`
		BytesTotal int64 `json:"bytes_total"`
	} `json:"progress,omitempty"`
	End *struct {
		OK     bool   `json:"ok"`
		Err    string `json:"error"`
		Bytes  int64  `json:"bytes"`
		SHA256 string `json:"sha256"`
	} `json:"end,omitempty"`
}

func runWatch(cmd *cobra.Command, args []string) error {
	target, err := resolveTarget(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	conn, _, err := websocket.Dial(dialCtx, "ws://"+target+"/events", nil)
	cancel()
	if err != nil {
		return fmt.Errorf("dial %s: %w", target, err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	fmt.Printf("Watching %s. Ctrl-C to stop.\n", target)
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Println(dimStyle.Render("stream closed: " + err.Error()))
			return nil
		}
		var ev event
		if err := json.Unmarshal(data, &ev); err != nil {
			continue
		}
		printEvent(ev)
	}
}

func printEvent(ev event) {
	switch ev.Kind {
	case "begin":
		total := "unknown size"
		if ev.Begin != nil && ev.Begin.Total > 0 {
			total = fmt.Sprintf("%d bytes", ev.Begin.Total)
		}
		fmt.Println(nameStyle.Render("upload started"), dimStyle.Render("("+total+")"))
	case "progress":
		if ev.Progress == nil {
			return
		}
		if ev.Progress.BytesTotal > 0 {
			pct := float64(ev.Progress.BytesDone) / float64(ev.Progress.BytesTotal) * 100
			fmt.Printf("\r%3.0f%% (%d / %d bytes)", pct, ev.Progress.BytesDone, ev.Progress.BytesTotal)
		} else {
			fmt.Printf("\r%d bytes", ev.Progress.BytesDone)
		}
	case "end":
		fmt.Println()
		if ev.End == nil {
			return
		}
		if ev.End.OK {
			fmt.Println(okStyle.Render("✓ complete"),
				fmt.Sprintf("%d bytes sha256 %s", ev.End.Bytes, ev.End.SHA256))
		} else {
			fmt.Println(failStyle.Render("✗ failed"), ev.End.Err)
		}
	}
}
