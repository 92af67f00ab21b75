package ipc

import (
	"bufio"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"lyricsync/internal/display"
)

type fakeControl struct {
	mu        sync.Mutex
	dismissed int
	restored  int
}

func (c *fakeControl) Dismiss() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dismissed++
	return "spotify"
}

func (c *fakeControl) Restore() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.restored++
}

func startServer(t *testing.T, control StandbyController) (*Server, string, string) {
	t.Helper()
	dir := t.TempDir()
	sock := filepath.Join(dir, "s.sock")
	status := filepath.Join(dir, "status")

	s := NewServer(sock, status, control)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(s.Close)
	return s, sock, status
}

func readFrame(t *testing.T, r *bufio.Reader) display.Frame {
	t.Helper()
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var f display.Frame
	if err := json.Unmarshal([]byte(line), &f); err != nil {
		t.Fatalf("decode %q: %v", line, err)
	}
	return f
}

func TestServerFrames(t *testing.T) {
	s, sock, status := startServer(t, nil)
	s.Show(display.Frame{Mode: display.ModeActive, Text: "first", HasLyric: true})

	conn, err := net.Dial("unix", sock)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	r := bufio.NewReader(conn)

	if f := readFrame(t, r); f.Text != "first" || !f.HasLyric {
		t.Errorf("expected the last frame on connect, got %+v", f)
	}

	// wait until the connection is registered for broadcasts
	deadline := time.Now().Add(time.Second)
	for {
		s.clientConnsLock.Lock()
		n := len(s.clientConns)
		s.clientConnsLock.Unlock()
		if n == 1 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	s.Show(display.Frame{Mode: display.ModeStandby})
	if f := readFrame(t, r); f.Mode != display.ModeStandby {
		t.Errorf("expected standby frame, got %+v", f)
	}

	got, err := os.ReadFile(status)
	if err != nil {
		t.Fatalf("status file: %v", err)
	}
	if string(got) != "\n" {
		t.Errorf("status file should follow the last text, got %q", got)
	}
}

func TestServerCommands(t *testing.T) {
	control := &fakeControl{}
	_, sock, _ := startServer(t, control)

	conn, err := net.Dial("unix", sock)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(2 * time.Second))
	r := bufio.NewReader(conn)

	for _, tc := range []struct{ cmd, want string }{
		{"dismiss", `"app_id":"spotify"`},
		{"RESTORE", `"ok":"restore"`},
		{"bogus", `"error"`},
	} {
		if _, err := conn.Write([]byte(tc.cmd + "\n")); err != nil {
			t.Fatalf("write: %v", err)
		}
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if !strings.Contains(line, tc.want) {
			t.Errorf("%s: got %q, want it to contain %s", tc.cmd, line, tc.want)
		}
	}

	control.mu.Lock()
	defer control.mu.Unlock()
	if control.dismissed != 1 || control.restored != 1 {
		t.Errorf("unexpected calls %+v", control)
	}
}

func TestServerSingleInstance(t *testing.T) {
	_, sock, _ := startServer(t, nil)

	second := NewServer(sock, "", nil)
	if err := second.Start(); err == nil {
		second.Close()
		t.Fatal("expected the second instance to fail")
	}
}

func TestServerStaleLock(t *testing.T) {
	dir := t.TempDir()
	sock := filepath.Join(dir, "s.sock")
	// a pid that cannot exist
	if err := os.WriteFile(sock+".lock", []byte("999999999\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewServer(sock, "", nil)
	if err := s.Start(); err != nil {
		t.Fatalf("Start with stale lock: %v", err)
	}
	s.Close()

	if _, err := os.Stat(sock + ".lock"); !os.IsNotExist(err) {
		t.Error("lock file should be removed on close")
	}
}
