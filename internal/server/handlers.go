package server

import (
	"github.com/go-gl/mathgl/mgl64"

	"realmsync.ai/internal/protocol"
	"realmsync.ai/internal/sim/world"
)

var _ protocol.Handler = (*Server)(nil)

func (s *Server) HandlePlayerSetup(src protocol.Source, m *protocol.PlayerSetup) {
	conn := src.Conn
	if _, bound := s.reg.Entity(conn); bound {
		return
	}
	if m.Name != "" && s.ids.ContainsName(m.Name) {
		id := s.ids.GetID(m.Name)
		e, ok := s.world.Get(id)
		_, claimed := s.reg.Conn(id)
		if ok && e.Kind == world.KindPlayer && e.Alive() && !claimed {
			if err := s.reg.Bind(conn, id); err != nil {
				s.log.Printf("resume conn=%d entity=%d: %v", conn, id, err)
				return
			}
			s.send(conn, &protocol.PlayerJoined{EntityID: id, ConnectionID: conn})
			s.send(conn, &protocol.PlayerSetup{ConnectionID: conn, Name: m.Name})
			s.log.Printf("resume conn=%d entity=%d name=%q", conn, id, m.Name)
			s.recordSession(conn, id, "resume")
			return
		}
	}

	e := s.spawnPlayer(conn, "")
	if m.Name != "" && !s.nameHeld(m.Name) {
		s.ids.AddData(m.Name, e.ID)
		e.Name = m.Name
	}
	s.broadcast(addEntity(e))
	s.broadcast(&protocol.AddEntityFinish{})
	s.send(conn, &protocol.PlayerJoined{EntityID: e.ID, ConnectionID: conn})
	s.send(conn, &protocol.PlayerSetup{ConnectionID: conn})
	s.log.Printf("join conn=%d entity=%d name=%q", conn, e.ID, e.Name)
	s.recordSession(conn, e.ID, "join")
}

// spawnPlayer creates a player at the re-entry point bound to conn.
func (s *Server) spawnPlayer(conn protocol.ConnID, name string) *world.Entity {
	e := s.world.Spawn(world.KindPlayer, mgl64.Vec3(s.tune.ReEntry))
	e.Name = name
	if err := s.reg.Bind(conn, e.ID); err != nil {
		// Fresh ids are never bound and callers check the conn first.
		panic(err)
	}
	return e
}

func (s *Server) HandleMove(src protocol.Source, m *protocol.Move) {
	e, ok := s.actor(src.Conn, m.EntityID)
	if !ok || !e.Alive() {
		return
	}
	e.Pos = mgl64.Vec3(m.Pos)
	e.Dir = mgl64.Vec3(m.Dir)
	e.State = world.AnimState(m.State)
}

func (s *Server) HandleAttack(src protocol.Source, m *protocol.Attack) {
	e, ok := s.actor(src.Conn, m.EntityID)
	if !ok || !e.Alive() {
		return
	}
	e.Pos = mgl64.Vec3(m.Pos)
	e.Dir = mgl64.Vec3(m.Dir)
	e.State = world.StateAttack
	res, hit := s.world.ResolveAttack(e.ID, s.tune.AttackReach)
	s.broadcastExcept(src.Conn, m)
	if hit && res.Killed {
		s.kill(res.Target)
	}
}

func (s *Server) kill(id protocol.EntityID) {
	e, ok := s.world.Remove(id)
	if !ok {
		return
	}
	s.broadcast(&protocol.RemoveEntity{EntityID: id})

	switch e.Kind {
	case world.KindMob:
		if !s.gameWon && s.tune.WinKills > 0 && s.world.Kills() >= s.tune.WinKills {
			s.gameWon = true
			s.log.Printf("game won kills=%d", s.world.Kills())
			s.broadcast(&protocol.GameWon{})
		}
	case world.KindPlayer:
		conn, bound := s.reg.UnbindEntity(id)
		if !bound {
			return
		}
		s.releaseChests(conn)
		ne := s.spawnPlayer(conn, e.Name)
		if e.Name != "" {
			s.ids.AddData(e.Name, ne.ID)
		}
		s.broadcast(addEntity(ne))
		s.broadcast(&protocol.AddEntityFinish{})
		s.send(conn, &protocol.PlayerJoined{EntityID: ne.ID, ConnectionID: conn})
		s.log.Printf("respawn conn=%d old=%d new=%d", conn, id, ne.ID)
	}
}

func (s *Server) HandleChat(src protocol.Source, m *protocol.Chat) {
	eid, ok := s.reg.Entity(src.Conn)
	if !ok {
		return
	}
	s.chat(src.Conn, eid, m.Text)
}

// HandleEffect relays the blob; the simulation interprets it.
func (s *Server) HandleEffect(src protocol.Source, m *protocol.Effect) {
	if _, ok := s.reg.Entity(src.Conn); !ok {
		return
	}
	s.broadcastExcept(src.Conn, m)
}

// HandleChestAccess serializes opens: the first open wins and later ones are
// echoed back with Open forced false.
func (s *Server) HandleChestAccess(src protocol.Source, m *protocol.ChestAccess) {
	if _, ok := s.actor(src.Conn, m.ActorID); !ok {
		return
	}
	c, ok := s.world.Get(m.ContainerID)
	if !ok || c.Kind != world.KindChest {
		return
	}
	if !m.Open {
		if holder, held := s.chests[c.ID]; held && holder == src.Conn {
			delete(s.chests, c.ID)
			c.Available = true
		}
		return
	}
	reply := *m
	if c.Available {
		c.Available = false
		s.chests[c.ID] = src.Conn
	} else {
		reply.Open = false
	}
	s.send(src.Conn, &reply)
}

func (s *Server) HandleInventoryTransfer(src protocol.Source, m *protocol.InventoryTransfer) {
	eid, ok := s.reg.Entity(src.Conn)
	if !ok || (m.FromID != eid && m.ToID != eid) {
		return
	}
	for _, side := range []protocol.EntityID{m.FromID, m.ToID} {
		if side == eid {
			continue
		}
		if e, found := s.world.Get(side); found && e.Kind == world.KindChest && s.chests[side] != src.Conn {
			return
		}
	}
	if !must(s.world.MoveItem(m.ItemID, m.FromID, m.ToID)) {
		return
	}
	s.broadcast(m)
}

func (s *Server) HandleItemTransfer(src protocol.Source, m *protocol.ItemTransfer) {
	if _, ok := s.actor(src.Conn, m.ActorID); !ok {
		return
	}
	var err error
	if m.Drop {
		err = s.world.Drop(m.ActorID, m.ItemID)
	} else {
		err = s.world.Pickup(m.ActorID, m.ItemID)
	}
	if !must(err) {
		return
	}
	s.broadcast(m)
}

func (s *Server) HandleEquipItem(src protocol.Source, m *protocol.EquipItem) {
	if _, ok := s.actor(src.Conn, m.ActorID); !ok {
		return
	}
	if !must(s.world.Equip(m.ActorID, m.ItemID, m.Equip)) {
		return
	}
	s.broadcastExcept(src.Conn, m)
}

func (s *Server) HandleRightClick(src protocol.Source, m *protocol.RightClick) {
	if _, ok := s.actor(src.Conn, m.ActorID); !ok {
		return
	}
	if _, err := s.world.Use(m.ActorID, m.ItemID); !must(err) {
		return
	}
	s.broadcastExcept(src.Conn, m)
}

func (s *Server) HandleOnActivate(src protocol.Source, m *protocol.OnActivate) {
	if _, ok := s.actor(src.Conn, m.ActorID); !ok {
		return
	}
	if _, err := s.world.Activate(m.ActorID, m.EntityID); !must(err) {
		return
	}
	s.broadcastExcept(src.Conn, m)
}

func (s *Server) HandleServerSave(src protocol.Source, _ *protocol.ServerSave) {
	if _, ok := s.reg.Entity(src.Conn); !ok {
		return
	}
	if _, err := s.Save(true); err != nil {
		s.log.Printf("save conn=%d: %v", src.Conn, err)
		return
	}
	s.broadcast(&protocol.ServerSave{})
}

// HandlePing echoes the request; the envelope carries server time.
func (s *Server) HandlePing(src protocol.Source, m *protocol.Ping) {
	reply := *m
	s.send(src.Conn, &reply)
}

// Server-to-client kinds. A client sending them is ignored.

func (s *Server) HandleAddEntity(protocol.Source, *protocol.AddEntity)             {}
func (s *Server) HandleAddEntityFinish(protocol.Source, *protocol.AddEntityFinish) {}
func (s *Server) HandleRemoveEntity(protocol.Source, *protocol.RemoveEntity)       {}
func (s *Server) HandleDayNight(protocol.Source, *protocol.DayNight)               {}
func (s *Server) HandlePlayerJoined(protocol.Source, *protocol.PlayerJoined)       {}
func (s *Server) HandleGameWon(protocol.Source, *protocol.GameWon)                 {}
func (s *Server) HandlePlayerSpeed(protocol.Source, *protocol.PlayerSpeed)         {}
