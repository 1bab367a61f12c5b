package server

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/go-gl/mathgl/mgl64"

	"realmsync.ai/internal/persistence/archive"
	"realmsync.ai/internal/persistence/indexdb"
	"realmsync.ai/internal/persistence/snapshot"
	"realmsync.ai/internal/protocol"
	"realmsync.ai/internal/sim/world"
)

const identityFile = "identity.json"

func SnapshotDir(dataDir string) string { return filepath.Join(dataDir, "snapshots") }
func IdentityPath(dataDir string) string { return filepath.Join(dataDir, identityFile) }

// Snapshot captures the world. Simulation goroutine only.
func (s *Server) Snapshot() (snapshot.SnapshotV1, error) {
	snap := snapshot.SnapshotV1{
		Header:       snapshot.NewHeader(s.now()),
		NextEntityID: int64(s.world.NextID()),
		Spawn:        [3]float64(s.spawn),
		PlayerSpeed:  s.speed,
		Time:         s.world.Time(),
		MobSpawning:  s.world.MobSpawning(),
		Kills:        s.world.Kills(),
		GameWon:      s.gameWon,
	}
	for _, e := range s.world.Snapshot() {
		blob, err := world.EncodeEntity(e)
		if err != nil {
			return snapshot.SnapshotV1{}, fmt.Errorf("entity %d: %w", e.ID, err)
		}
		snap.Entities = append(snap.Entities, blob)
	}
	return snap, nil
}

// Restore loads a snapshot into an empty world. Call before Run.
func (s *Server) Restore(snap snapshot.SnapshotV1) error {
	batch := make([]*world.Entity, 0, len(snap.Entities))
	for i, blob := range snap.Entities {
		e, err := world.DecodeEntity(blob)
		if err != nil {
			return fmt.Errorf("snapshot entity %d: %w", i, err)
		}
		if e.Kind == world.KindChest {
			e.Available = true
		}
		batch = append(batch, e)
	}
	if err := s.world.Admit(batch); err != nil {
		return err
	}
	s.world.Restore(protocol.EntityID(snap.NextEntityID))
	s.world.SetTime(snap.Time)
	s.world.SetMobSpawning(snap.MobSpawning)
	s.world.SetKills(snap.Kills)
	s.gameWon = snap.GameWon
	s.spawn = mgl64.Vec3(snap.Spawn)
	if snap.PlayerSpeed > 0 {
		s.speed = snap.PlayerSpeed
	}
	s.dropStaleNames()
	return nil
}

// dropStaleNames forgets names bound to ids the loaded world does not hold
// as players. The allocator would otherwise hand such an id to a stranger
// who then answers to the old name.
func (s *Server) dropStaleNames() {
	dropped := s.ids.Prune(func(id protocol.EntityID) bool {
		e, ok := s.world.Get(id)
		return ok && e.Kind == world.KindPlayer
	})
	if len(dropped) > 0 {
		s.log.Printf("identity: dropped %d stale names %v", len(dropped), dropped)
	}
}

// nameHeld reports whether name is bound to a player entity still in the
// world. A binding whose entity is gone can be taken by anyone.
func (s *Server) nameHeld(name string) bool {
	if !s.ids.ContainsName(name) {
		return false
	}
	e, ok := s.world.Get(s.ids.GetID(name))
	return ok && e.Kind == world.KindPlayer
}

// Save writes the world snapshot and the identity store. A failure is
// returned to the caller and never stops the simulation.
func (s *Server) Save(manual bool) (string, error) {
	if s.dataDir == "" {
		return "", fmt.Errorf("save: no data dir")
	}
	snap, err := s.Snapshot()
	if err != nil {
		return "", fmt.Errorf("save: %w", err)
	}
	path := snapshot.PathFor(SnapshotDir(s.dataDir), snap.Header)
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		return "", fmt.Errorf("save snapshot: %w", err)
	}
	if err := s.ids.Save(IdentityPath(s.dataDir)); err != nil {
		return path, fmt.Errorf("save identity: %w", err)
	}
	s.lastSavedPath = path
	s.log.Printf("saved path=%s entities=%d manual=%v", path, len(snap.Entities), manual)
	if manual && s.archive {
		if _, err := archive.Keep(s.dataDir, path, IdentityPath(s.dataDir), snap); err != nil {
			s.log.Printf("archive save_id=%s: %v", snap.Header.SaveID, err)
		}
	}
	if s.mirror != nil {
		s.mirror.Enqueue(path)
		s.mirror.Enqueue(IdentityPath(s.dataDir))
	}
	if s.index != nil {
		s.index.RecordSave(indexdb.SaveEvent{
			At:       snap.Header.SavedAt,
			SaveID:   snap.Header.SaveID.String(),
			Path:     path,
			Entities: len(snap.Entities),
			Players:  len(s.world.OfKind(world.KindPlayer)),
			Manual:   manual,
		})
	}
	return path, nil
}

// RequestSave asks the simulation goroutine for a save and waits for the
// result. Safe from any goroutine.
func (s *Server) RequestSave(ctx context.Context) (string, error) {
	type result struct {
		path string
		err  error
	}
	ch := make(chan result, 1)
	if err := s.bridge.Enqueue(func() {
		path, err := s.Save(true)
		ch <- result{path, err}
	}); err != nil {
		return "", err
	}
	select {
	case r := <-ch:
		return r.path, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
