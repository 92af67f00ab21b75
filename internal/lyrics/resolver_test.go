package lyrics

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeIndex struct {
	ids    map[string]string
	loaded int
}

func (f *fakeIndex) EnsureLoaded(ctx context.Context) { f.loaded++ }

func (f *fakeIndex) Resolve(title, artist string) (string, bool) {
	id, ok := f.ids[title]
	return id, ok
}

type fakeLocal map[string][]Line

func (f fakeLocal) Load(trackID string) ([]Line, bool) {
	lines, ok := f[trackID]
	return lines, ok
}

type fakeRemote struct {
	lines []Line
	err   error
	calls int
}

func (f *fakeRemote) Fetch(ctx context.Context, q Query) ([]Line, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.lines) == 0 {
		return nil, ErrNoLyrics
	}
	return f.lines, nil
}

func TestResolverChain(t *testing.T) {
	local := []Line{{Time: 0, Text: "local"}}
	remote := []Line{{Time: time.Second, Text: "remote"}}

	tests := []struct {
		name          string
		ids           map[string]string
		local         fakeLocal
		remote        []Line
		wantID        string
		wantSource    Source
		remoteErr     error
		wantRemotes   int
		wantTransient bool
	}{
		{
			name:        "LocalHit",
			ids:         map[string]string{"Song": "42"},
			local:       fakeLocal{"42": local},
			remote:      remote,
			wantID:      "42",
			wantSource:  SourceLocal,
			wantRemotes: 0,
		},
		{
			name:        "IndexedButNoLocalFile",
			ids:         map[string]string{"Song": "42"},
			local:       fakeLocal{},
			remote:      remote,
			wantID:      "42",
			wantSource:  SourceRemote,
			wantRemotes: 1,
		},
		{
			name:        "UnknownTrackRemoteHit",
			local:       fakeLocal{"42": local},
			remote:      remote,
			wantID:      RemoteTrackID("Song", "Artist"),
			wantSource:  SourceRemote,
			wantRemotes: 1,
		},
		{
			name:        "NothingAnywhere",
			ids:         map[string]string{"Song": "42"},
			local:       fakeLocal{},
			wantID:      "42",
			wantSource:  SourceNone,
			wantRemotes: 1,
		},
		{
			name:          "RemoteUnreachable",
			ids:           map[string]string{"Song": "42"},
			local:         fakeLocal{},
			remoteErr:     errors.New("connection refused"),
			wantID:        "42",
			wantSource:    SourceNone,
			wantRemotes:   1,
			wantTransient: true,
		},
		{
			name:        "UnknownAndNoRemote",
			local:       fakeLocal{},
			wantID:      "",
			wantSource:  SourceNone,
			wantRemotes: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := &fakeIndex{ids: tt.ids}
			rem := &fakeRemote{lines: tt.remote, err: tt.remoteErr}
			r := NewResolver(idx, tt.local, rem)

			res := r.Resolve(context.Background(), Query{Title: "Song", Artist: "Artist"})
			if res.TrackID != tt.wantID || res.Source != tt.wantSource {
				t.Errorf("got (%q, %s), want (%q, %s)", res.TrackID, res.Source, tt.wantID, tt.wantSource)
			}
			if res.Transient != tt.wantTransient {
				t.Errorf("Transient = %v, want %v", res.Transient, tt.wantTransient)
			}
			if rem.calls != tt.wantRemotes {
				t.Errorf("expected %d remote calls, got %d", tt.wantRemotes, rem.calls)
			}
			if idx.loaded != 1 {
				t.Errorf("expected EnsureLoaded once, got %d", idx.loaded)
			}
			if tt.wantSource == SourceNone && len(res.Lines) != 0 {
				t.Errorf("expected no lines, got %v", res.Lines)
			}
		})
	}
}

func TestResolverNilStages(t *testing.T) {
	r := NewResolver(nil, nil, nil)
	res := r.Resolve(context.Background(), Query{Title: "Song"})
	if res.Source != SourceNone || res.TrackID != "" {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestResolverCancelledSkipsRemote(t *testing.T) {
	rem := &fakeRemote{lines: []Line{{Text: "x"}}}
	r := NewResolver(&fakeIndex{}, fakeLocal{}, rem)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if res := r.Resolve(ctx, Query{Title: "Song"}); res.Source != SourceNone {
		t.Errorf("expected none, got %s", res.Source)
	}
	if rem.calls != 0 {
		t.Errorf("remote should not be called after cancellation")
	}
}

func TestRemoteTrackIDStable(t *testing.T) {
	a := RemoteTrackID("Song", "Artist")
	if a != RemoteTrackID("Song", "Artist") {
		t.Error("expected a stable id")
	}
	if a == RemoteTrackID("Song", "Other") {
		t.Error("expected different ids for different artists")
	}
	// base64("Song|Artist")
	if a != "API_U29uZ3xBcnRpc3Q=" {
		t.Errorf("unexpected id %q", a)
	}
}
