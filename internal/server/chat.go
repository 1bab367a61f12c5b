package server

import (
	"fmt"
	"sort"
	"strings"

	"realmsync.ai/internal/persistence/indexdb"
	"realmsync.ai/internal/protocol"
	"realmsync.ai/internal/sim/world"
)

// SourceServer is the chat source of server notices.
const SourceServer = "SERVER"

func guestName(id protocol.EntityID) string { return fmt.Sprintf("Guest %d", id) }

// splitCommand returns the command word and the rest of the line.
func splitCommand(text string) (cmd, rest string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", text
	}
	cmd, rest, _ = strings.Cut(text, " ")
	return cmd, strings.TrimSpace(rest)
}

func (s *Server) chat(conn protocol.ConnID, from protocol.EntityID, text string) {
	cmd, rest := splitCommand(text)
	ev := indexdb.ChatEvent{At: s.now(), From: int64(from), Source: s.displayName(from), Text: text, Command: cmd}

	switch cmd {
	case "/name":
		s.chatName(conn, from, rest)
	case "/msg":
		to, body, _ := strings.Cut(rest, " ")
		ev.To, ev.Text = to, strings.TrimSpace(body)
		s.chatPrivate(conn, from, to, ev.Text)
	case "/hit-count":
		s.chatHitCount()
	case "/mobs":
		on := !s.world.MobSpawning()
		s.world.SetMobSpawning(on)
		state := "OFF"
		if on {
			state = "ON"
		}
		s.broadcast(&protocol.Chat{Text: "MOB SPAWNING " + state, Source: SourceServer, ID: protocol.NoEntity})
	default:
		ev.Command = ""
		s.broadcast(&protocol.Chat{Text: text, Source: s.displayName(from), ID: from})
	}
	if s.index != nil {
		s.index.RecordChat(ev)
	}
}

// chatName claims name for the sender. A name bound to someone else is refused.
func (s *Server) chatName(conn protocol.ConnID, from protocol.EntityID, name string) {
	if name == "" {
		return
	}
	if s.nameHeld(name) && s.ids.GetID(name) != from {
		s.send(conn, &protocol.Chat{Text: "NAME " + name + " IS TAKEN", Source: SourceServer, ID: protocol.NoEntity})
		return
	}
	s.ids.AddData(name, from)
	if e, ok := s.world.Get(from); ok {
		e.Name = name
	}
	s.send(conn, &protocol.PlayerSetup{ConnectionID: conn, Name: name})
}

// chatPrivate delivers to the recipient and echoes to the sender. Unknown or
// offline recipients drop the message.
func (s *Server) chatPrivate(conn protocol.ConnID, from protocol.EntityID, to, body string) {
	if to == "" || body == "" || !s.ids.ContainsName(to) {
		return
	}
	rc, ok := s.reg.Conn(s.ids.GetID(to))
	if !ok {
		return
	}
	msg := &protocol.Chat{Text: body, Source: s.displayName(from) + " -> " + to, ID: from}
	s.send(rc, msg)
	if rc != conn {
		s.send(conn, msg)
	}
}

// hitRanking orders connected players by hit count, highest first.
func (s *Server) hitRanking() []*world.Entity {
	var players []*world.Entity
	for _, c := range s.reg.Conns() {
		eid, _ := s.reg.Entity(c)
		if e, ok := s.world.Get(eid); ok {
			players = append(players, e)
		}
	}
	sort.SliceStable(players, func(i, j int) bool {
		if players[i].Hits != players[j].Hits {
			return players[i].Hits > players[j].Hits
		}
		return players[i].ID < players[j].ID
	})
	return players
}

func (s *Server) chatHitCount() {
	for i, e := range s.hitRanking() {
		s.broadcast(&protocol.Chat{
			Text:   fmt.Sprintf("%d. %s: %d", i+1, s.displayName(e.ID), e.Hits),
			Source: "HIT COUNT",
			ID:     e.ID,
		})
	}
}
