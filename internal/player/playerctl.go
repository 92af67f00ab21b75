package player

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// playerctlFormat is a tab separated snapshot: status, title, artist, album,
// position and length, both in microseconds.
const playerctlFormat = "{{status}}\t{{title}}\t{{artist}}\t{{album}}\t{{position}}\t{{mpris:length}}"

// PlayerctlProvider shells out to playerctl. It has no change notifications;
// the scheduler's polling covers it.
type PlayerctlProvider struct {
	Binary string
}

func NewPlayerctlProvider() *PlayerctlProvider {
	return &PlayerctlProvider{Binary: "playerctl"}
}

func (p *PlayerctlProvider) Name() string { return "playerctl" }

func (p *PlayerctlProvider) Sessions(ctx context.Context) ([]Session, error) {
	out, err := exec.CommandContext(ctx, p.Binary, "-l").Output()
	if err != nil {
		// playerctl exits non-zero when no players are running
		if _, ok := err.(*exec.ExitError); ok {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list players: %w", err)
	}

	var sessions []Session
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		name := strings.TrimSpace(scanner.Text())
		if name == "" {
			continue
		}
		meta, err := exec.CommandContext(ctx, p.Binary, "-p", name, "metadata", "--format", playerctlFormat).Output()
		if err != nil {
			continue
		}
		sessions = append(sessions, parsePlayerctl(name, string(meta)))
	}
	return sessions, nil
}

func (p *PlayerctlProvider) Watch(appID string, onChange func()) (func(), error) {
	return func() {}, nil
}

func parsePlayerctl(player, line string) Session {
	fields := strings.Split(strings.TrimRight(line, "\r\n"), "\t")
	for len(fields) < 6 {
		fields = append(fields, "")
	}
	return Session{
		AppID:    player,
		Status:   ParseStatus(fields[0]),
		Title:    strings.TrimSpace(fields[1]),
		Artist:   strings.TrimSpace(fields[2]),
		Subtitle: strings.TrimSpace(fields[3]),
		Position: parseMicros(fields[4]),
		End:      parseMicros(fields[5]),
	}
}

func parseMicros(s string) time.Duration {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return time.Duration(n) * time.Microsecond
}
