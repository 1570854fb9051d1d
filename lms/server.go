package lms

import (
	"context"
	"strconv"
)

// maxPlayers bounds the "players" query; a household never comes close.
const maxPlayers = 999

// PlayerInfo is one entry of the server's player enumeration.
type PlayerInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Model     string `json:"model,omitempty"`
	Connected bool   `json:"connected"`
}

// Server is the server-level view of a Transport.
type Server struct {
	transport Transport
}

// NewServer wraps a transport.
func NewServer(t Transport) *Server {
	return &Server{transport: t}
}

// Players enumerates the players known to the server.
func (s *Server) Players(ctx context.Context) ([]PlayerInfo, error) {
	res, err := s.transport.Request(ctx, "", []string{"players", "0", strconv.Itoa(maxPlayers)})
	if err != nil {
		return nil, err
	}
	loop := res.Loop("players_loop")
	players := make([]PlayerInfo, 0, len(loop))
	for _, p := range loop {
		players = append(players, PlayerInfo{
			ID:        p.Str("playerid"),
			Name:      p.Str("name"),
			Model:     p.Str("model"),
			Connected: p.Int("connected") == 1,
		})
	}
	return players, nil
}

// Player resolves the player with the given display name.
func (s *Server) Player(ctx context.Context, name string) (*Player, error) {
	players, err := s.Players(ctx)
	if err != nil {
		return nil, err
	}
	available := make([]string, 0, len(players))
	for _, p := range players {
		if p.Name == name {
			return newPlayer(s.transport, p), nil
		}
		available = append(available, p.Name)
	}
	return nil, &PlayerNotFoundError{Name: name, Available: available}
}
