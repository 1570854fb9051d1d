package lms

import (
	"context"
	"sync"
)

// statusTags asks for artist, duration, album and artwork url in playlist_loop.
const statusTags = "tags:adlK"

// Status is the part of the player status kept after Update.
type Status struct {
	Mode   string `json:"mode"`
	Name   string `json:"name"`
	Title  string `json:"title,omitempty"`
	Album  string `json:"album,omitempty"`
	Artist string `json:"artist,omitempty"`
	Volume int    `json:"volume"`
}

// Player is a handle on one player. Methods are safe for concurrent use, but
// callers are expected to issue one command and one Update at a time.
type Player struct {
	transport Transport
	id        string
	name      string

	mu     sync.RWMutex
	status Status
}

func newPlayer(t Transport, info PlayerInfo) *Player {
	return &Player{
		transport: t,
		id:        info.ID,
		name:      info.Name,
		status:    Status{Name: info.Name},
	}
}

// NewPlayer builds a handle for a known player id without enumerating.
func NewPlayer(t Transport, id, name string) *Player {
	return newPlayer(t, PlayerInfo{ID: id, Name: name})
}

// Name is the display name. It follows renames seen by Update.
func (p *Player) Name() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status.Name
}

// ID is the player id, usually its MAC address.
func (p *Player) ID() string { return p.id }

// LoadURL replaces the playlist with the URL and starts playing it.
func (p *Player) LoadURL(ctx context.Context, url string) error {
	return p.Command(ctx, "playlist", "play", url)
}

// LoadPath replaces the playlist with a library path and starts playing it.
func (p *Player) LoadPath(ctx context.Context, path string) error {
	return p.Command(ctx, "playlist", "play", path)
}

// Command sends a raw token sequence.
func (p *Player) Command(ctx context.Context, tokens ...string) error {
	_, err := p.transport.Request(ctx, p.id, tokens)
	return err
}

// Subcommand sends a named command followed by its arguments, for plugin
// commands like "dynamicplaylist".
func (p *Player) Subcommand(ctx context.Context, name string, args ...string) error {
	return p.Command(ctx, append([]string{name}, args...)...)
}

// Update refreshes the cached status.
func (p *Player) Update(ctx context.Context) error {
	res, err := p.transport.Request(ctx, p.id, []string{"status", "-", "1", statusTags})
	if err != nil {
		return err
	}

	st := Status{
		Mode:   res.Str("mode"),
		Name:   res.Str("player_name"),
		Volume: res.Int("mixer volume"),
	}
	if st.Name == "" {
		st.Name = p.name
	}
	if loop := res.Loop("playlist_loop"); len(loop) > 0 {
		st.Title = loop[0].Str("title")
		st.Album = loop[0].Str("album")
		st.Artist = loop[0].Str("artist")
	}
	if meta := res.Object("remoteMeta"); meta != nil {
		if st.Title == "" {
			st.Title = meta.Str("title")
		}
		if st.Album == "" {
			st.Album = meta.Str("album")
		}
		if st.Artist == "" {
			st.Artist = meta.Str("artist")
		}
	}

	p.mu.Lock()
	p.status = st
	p.mu.Unlock()
	return nil
}

// Status returns the status cached by the last Update.
func (p *Player) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// Album of the current track, as of the last Update.
func (p *Player) Album() string { return p.Status().Album }

// Mode is "play", "pause" or "stop", as of the last Update.
func (p *Player) Mode() string { return p.Status().Mode }

// Title of the current track, as of the last Update.
func (p *Player) Title() string { return p.Status().Title }
