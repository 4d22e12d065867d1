package console

import (
	"bytes"
	"io"
	"os"
	"testing"
	"time"

	"github.com/ericogr/conveyor-rover/pkg/control"
)

func captureStdout(f func()) string {
	r, w, _ := os.Pipe()
	stdout := os.Stdout
	os.Stdout = w
	outC := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, r)
		outC <- buf.String()
	}()
	f()
	_ = w.Close()
	os.Stdout = stdout
	return <-outC
}

func TestConsolePublish(t *testing.T) {
	c := NewConsole()
	ts := time.Date(2025, 9, 19, 14, 41, 54, 0, time.UTC)
	events := []control.Event{
		{Kind: control.EventDrive, Action: control.ActionLeft, Code: "011", Timestamp: ts},
		{Kind: control.EventConveyorStart, Distance: 21.46, Timestamp: ts},
		{Kind: control.EventConveyorStop, Timestamp: ts},
	}
	out := captureStdout(func() {
		for _, e := range events {
			_ = c.Publish(e)
		}
	})
	want := "2025-09-19T14:41:54Z LEFT code=011\n" +
		"2025-09-19T14:41:54Z CONVEYOR START distance=21.5cm\n" +
		"2025-09-19T14:41:54Z CONVEYOR STOP\n"
	if out != want {
		t.Fatalf("console output mismatch:\n got: %q\nwant: %q", out, want)
	}
}
