package player

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	mprisPrefix      = "org.mpris.MediaPlayer2."
	mprisPath        = "/org/mpris/MediaPlayer2"
	mprisPlayerIface = "org.mpris.MediaPlayer2.Player"
	propertiesIface  = "org.freedesktop.DBus.Properties"
)

// MPRISProvider reads players over the session bus.
type MPRISProvider struct {
	bus    *dbus.Conn
	logger zerolog.Logger
}

func NewMPRISProvider() (*MPRISProvider, error) {
	bus, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	return &MPRISProvider{
		bus:    bus,
		logger: log.With().Str("component", "mpris").Logger(),
	}, nil
}

func (p *MPRISProvider) Name() string { return "mpris" }

func (p *MPRISProvider) Close() error {
	return p.bus.Close()
}

func (p *MPRISProvider) Sessions(ctx context.Context) ([]Session, error) {
	var names []string
	err := p.bus.BusObject().CallWithContext(ctx, "org.freedesktop.DBus.ListNames", 0).Store(&names)
	if err != nil {
		return nil, fmt.Errorf("failed to list dbus names: %w", err)
	}

	var sessions []Session
	for _, name := range names {
		if !strings.HasPrefix(name, mprisPrefix) {
			continue
		}

		var props map[string]dbus.Variant
		err := p.bus.Object(name, mprisPath).
			CallWithContext(ctx, propertiesIface+".GetAll", 0, mprisPlayerIface).
			Store(&props)
		if err != nil {
			p.logger.Debug().Err(err).Str("player", name).Msg("Failed to read player properties")
			continue
		}
		sessions = append(sessions, sessionFromProps(name, props))
	}
	return sessions, nil
}

func (p *MPRISProvider) Watch(appID string, onChange func()) (func(), error) {
	if appID == "" {
		return nil, errors.New("empty app id")
	}
	busName := mprisPrefix + appID

	var owner string
	if err := p.bus.BusObject().Call("org.freedesktop.DBus.GetNameOwner", 0, busName).Store(&owner); err != nil {
		return nil, fmt.Errorf("failed to resolve owner of %s: %w", busName, err)
	}

	matches := []string{
		fmt.Sprintf("type='signal',sender='%s',interface='%s',member='PropertiesChanged',path='%s'",
			busName, propertiesIface, mprisPath),
		fmt.Sprintf("type='signal',sender='%s',interface='%s',member='Seeked',path='%s'",
			busName, mprisPlayerIface, mprisPath),
	}
	for i, m := range matches {
		if err := p.bus.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, m).Err; err != nil {
			for _, added := range matches[:i] {
				p.bus.BusObject().Call("org.freedesktop.DBus.RemoveMatch", 0, added)
			}
			return nil, fmt.Errorf("failed to add match: %w", err)
		}
	}

	signals := make(chan *dbus.Signal, 16)
	p.bus.Signal(signals)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case sig := <-signals:
				if sig == nil || sig.Sender != owner || sig.Path != mprisPath {
					continue
				}
				switch sig.Name {
				case propertiesIface + ".PropertiesChanged", mprisPlayerIface + ".Seeked":
					onChange()
				}
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			p.bus.RemoveSignal(signals)
			for _, m := range matches {
				p.bus.BusObject().Call("org.freedesktop.DBus.RemoveMatch", 0, m)
			}
			close(done)
		})
	}
	return stop, nil
}

func sessionFromProps(busName string, props map[string]dbus.Variant) Session {
	s := Session{AppID: strings.TrimPrefix(busName, mprisPrefix)}

	if v, ok := props["PlaybackStatus"]; ok {
		if status, ok := v.Value().(string); ok {
			s.Status = ParseStatus(status)
		}
	}
	if v, ok := props["Position"]; ok {
		s.Position = microseconds(v.Value())
	}
	if v, ok := props["Metadata"]; ok {
		if md, ok := v.Value().(map[string]dbus.Variant); ok {
			s.Title = extractString(md, "xesam:title")
			s.Artist = extractArtist(md, "xesam:artist")
			s.Subtitle = extractString(md, "xesam:album")
			if length, ok := md["mpris:length"]; ok {
				s.End = microseconds(length.Value())
			}
		}
	}
	return s
}

func microseconds(raw any) time.Duration {
	switch v := raw.(type) {
	case int64:
		if v > 0 {
			return time.Duration(v) * time.Microsecond
		}
	case uint64:
		return time.Duration(v) * time.Microsecond
	case int32:
		if v > 0 {
			return time.Duration(v) * time.Microsecond
		}
	case float64:
		if v > 0 {
			return time.Duration(v * float64(time.Microsecond))
		}
	}
	return 0
}

func extractString(metadata map[string]dbus.Variant, key string) string {
	variant, exists := metadata[key]
	if !exists {
		return ""
	}
	text, _ := variant.Value().(string)
	return text
}

// extractArtist joins multiple artists the way the track index splits them.
func extractArtist(metadata map[string]dbus.Variant, key string) string {
	variant, exists := metadata[key]
	if !exists {
		return ""
	}

	switch typed := variant.Value().(type) {
	case []string:
		return strings.Join(typed, "/")
	case string:
		return typed
	default:
		return ""
	}
}
