// Package ipc serves display frames to local clients and accepts standby
// commands from them.
package ipc

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"lyricsync/internal/display"
	"lyricsync/pkg/fileutil"
)

const writeTimeout = 2 * time.Second

// StandbyController handles the manual standby gesture.
type StandbyController interface {
	// Dismiss enters manual standby for the current session and returns
	// its app id.
	Dismiss() string
	Restore()
}

// Server is a display sink over a unix socket. Each frame is written to
// every client as one JSON line; clients may send "dismiss" or "restore".
type Server struct {
	socketPath   string
	statusFile   string
	lockFilePath string
	control      StandbyController
	logger       zerolog.Logger

	listener        net.Listener
	clientConns     map[net.Conn]struct{}
	clientConnsLock sync.Mutex
	last            []byte
	lastText        string
	lastLock        sync.Mutex
	lockFile        *os.File
	wg              sync.WaitGroup
}

// NewServer returns a server. statusFile, when set, receives the current
// text for bars that poll a file; control may be nil.
func NewServer(socketPath, statusFile string, control StandbyController) *Server {
	return &Server{
		socketPath:   socketPath,
		statusFile:   statusFile,
		lockFilePath: socketPath + ".lock",
		control:      control,
		clientConns:  make(map[net.Conn]struct{}),
		logger:       log.With().Str("component", "ipc").Logger(),
	}
}

func (s *Server) checkAndCleanOldLock() {
	content, err := os.ReadFile(s.lockFilePath)
	if os.IsNotExist(err) {
		return
	}
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to read lock file, removing it")
		os.Remove(s.lockFilePath)
		return
	}

	pidStr := strings.TrimSpace(string(content))
	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		s.logger.Warn().Str("pid_str", pidStr).Msg("Invalid PID in lock file, removing it")
		os.Remove(s.lockFilePath)
		return
	}

	if !isProcessRunning(pid) {
		s.logger.Info().Int("old_pid", pid).Msg("Process in lock file is not running, removing lock file")
		os.Remove(s.lockFilePath)
		return
	}

	s.logger.Info().Int("existing_pid", pid).Msg("Another process is still running")
}

// isProcessRunning uses kill(pid, 0), which only checks for existence.
func isProcessRunning(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}

func (s *Server) acquireLock() error {
	s.checkAndCleanOldLock()

	file, err := os.OpenFile(s.lockFilePath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("failed to create lock file: %w", err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) {
			return errors.New("another lyricsync instance is already running")
		}
		return fmt.Errorf("failed to acquire lock: %w", err)
	}

	// truncate only once the lock is ours
	if err := file.Truncate(0); err != nil {
		syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		file.Close()
		return fmt.Errorf("failed to truncate lock file: %w", err)
	}
	if _, err := file.WriteAt([]byte(fmt.Sprintf("%d\n", os.Getpid())), 0); err != nil {
		syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		file.Close()
		return fmt.Errorf("failed to write PID to lock file: %w", err)
	}

	s.lockFile = file
	s.logger.Info().Str("lock_file", s.lockFilePath).Int("pid", os.Getpid()).Msg("Acquired process lock")
	return nil
}

func (s *Server) releaseLock() {
	if s.lockFile == nil {
		return
	}
	syscall.Flock(int(s.lockFile.Fd()), syscall.LOCK_UN)
	s.lockFile.Close()
	os.Remove(s.lockFilePath)
	s.logger.Info().Str("lock_file", s.lockFilePath).Msg("Released process lock")
	s.lockFile = nil
}

func (s *Server) Start() error {
	if err := s.acquireLock(); err != nil {
		return err
	}

	if err := os.RemoveAll(s.socketPath); err != nil {
		s.releaseLock()
		return err
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		s.releaseLock()
		return err
	}
	s.listener = listener

	s.logger.Info().Str("socket_path", s.socketPath).Msg("IPC server listening")

	s.wg.Add(1)
	go s.acceptConnections()
	return nil
}

func (s *Server) acceptConnections() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Error().Err(err).Msg("Failed to accept IPC connection")
			continue
		}
		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()

	s.lastLock.Lock()
	initial := s.last
	s.lastLock.Unlock()

	s.clientConnsLock.Lock()
	s.clientConns[conn] = struct{}{}
	if initial != nil {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if _, err := conn.Write(initial); err != nil {
			s.logger.Debug().Err(err).Msg("Failed to send initial frame")
		}
	}
	s.clientConnsLock.Unlock()

	s.logger.Debug().Msg("Client connected")

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		reply := s.command(strings.TrimSpace(scanner.Text()))
		if reply == "" {
			continue
		}
		s.clientConnsLock.Lock()
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		_, err := conn.Write([]byte(reply + "\n"))
		s.clientConnsLock.Unlock()
		if err != nil {
			break
		}
	}

	s.clientConnsLock.Lock()
	delete(s.clientConns, conn)
	s.clientConnsLock.Unlock()
	conn.Close()
	s.logger.Debug().Msg("Client disconnected")
}

func (s *Server) command(cmd string) string {
	switch strings.ToLower(cmd) {
	case "":
		return ""
	case "dismiss":
		if s.control == nil {
			return `{"error":"standby not available"}`
		}
		app := s.control.Dismiss()
		s.logger.Info().Str("app", app).Msg("Manual standby")
		b, _ := json.Marshal(map[string]string{"ok": "dismiss", "app_id": app})
		return string(b)
	case "restore":
		if s.control == nil {
			return `{"error":"standby not available"}`
		}
		s.control.Restore()
		s.logger.Info().Msg("Manual standby cleared")
		return `{"ok":"restore"}`
	default:
		b, _ := json.Marshal(map[string]string{"error": "unknown command " + cmd})
		return string(b)
	}
}

// Show broadcasts f to every connected client and mirrors its text into the
// status file.
func (s *Server) Show(f display.Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode frame")
		return
	}
	data = append(data, '\n')

	s.lastLock.Lock()
	s.last = data
	textChanged := f.Text != s.lastText
	s.lastText = f.Text
	s.lastLock.Unlock()

	if s.statusFile != "" && textChanged {
		if err := fileutil.WriteFileAtomic(s.statusFile, []byte(f.Text+"\n"), 0644); err != nil {
			s.logger.Debug().Err(err).Msg("Failed to write status file")
		}
	}

	s.clientConnsLock.Lock()
	defer s.clientConnsLock.Unlock()

	for conn := range s.clientConns {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if _, err := conn.Write(data); err != nil {
			s.logger.Debug().Err(err).Msg("Failed to write to client, removing")
			conn.Close()
			delete(s.clientConns, conn)
		}
	}
}

// Close stops accepting, disconnects clients and releases the lock.
func (s *Server) Close() {
	if s.listener != nil {
		s.listener.Close()
	}
	s.clientConnsLock.Lock()
	for conn := range s.clientConns {
		conn.Close()
	}
	s.clientConnsLock.Unlock()
	s.wg.Wait()
	os.Remove(s.socketPath)
	s.releaseLock()
}
