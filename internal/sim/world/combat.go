package world

import (
	"sort"

	"github.com/go-gl/mathgl/mgl64"

	"realmsync.ai/internal/protocol"
)

// AttackResult describes the entity an attack landed on.
type AttackResult struct {
	Target protocol.EntityID
	Damage int
	Killed bool
}

const (
	baseDamage   = 1
	weaponDamage = 2
	aggroRange   = 30.0
)

func (w *World) damageOf(attacker *Entity) int {
	for _, id := range attacker.Equipped {
		if it, ok := w.entities[id]; ok && it.Item == ItemWeapon {
			return weaponDamage
		}
	}
	return baseDamage
}

// ResolveAttack hits the closest living creature within reach in front of
// the attacker. ok is false when nothing was in range.
func (w *World) ResolveAttack(attacker protocol.EntityID, reach float64) (AttackResult, bool) {
	a, found := w.entities[attacker]
	if !found || !a.Alive() {
		return AttackResult{}, false
	}
	var (
		best     *Entity
		bestDist float64
	)
	for _, e := range w.Entities() {
		if e.ID == attacker || !e.Alive() {
			continue
		}
		if e.Kind != KindPlayer && e.Kind != KindMob {
			continue
		}
		to := e.Pos.Sub(a.Pos)
		d := to.Len()
		if d > reach {
			continue
		}
		if d > 0 && a.Dir.Len() > 0 && a.Dir.Dot(to) < 0 {
			continue
		}
		if best == nil || d < bestDist {
			best, bestDist = e, d
		}
	}
	if best == nil {
		return AttackResult{}, false
	}
	dmg := w.damageOf(a)
	best.HP -= dmg
	a.Hits++
	res := AttackResult{Target: best.ID, Damage: dmg}
	if best.HP <= 0 {
		best.HP = 0
		best.State = StateDead
		res.Killed = true
		if best.Kind == KindMob && a.Kind == KindPlayer {
			w.kills++
		}
	}
	return res, true
}

// TargetOrder lists living players by distance from the mob, nearest first.
// Ties break on id.
func (w *World) TargetOrder(mob *Entity) []*Entity {
	var players []*Entity
	for _, e := range w.entities {
		if e.Kind == KindPlayer && e.Alive() {
			players = append(players, e)
		}
	}
	sort.Slice(players, func(i, j int) bool {
		m1 := players[i].Pos.Sub(mob.Pos).Len()
		m2 := players[j].Pos.Sub(mob.Pos).Len()
		if m1 != m2 {
			return m1 < m2
		}
		return players[i].ID < players[j].ID
	})
	return players
}

// StepMobs moves every mob toward its nearest player in aggro range and
// returns the ids that moved.
func (w *World) StepMobs(dt, speed float64) []protocol.EntityID {
	var moved []protocol.EntityID
	for _, m := range w.OfKind(KindMob) {
		if !m.Alive() {
			continue
		}
		targets := w.TargetOrder(m)
		if len(targets) == 0 {
			if m.State != StateIdle {
				m.State = StateIdle
				moved = append(moved, m.ID)
			}
			continue
		}
		to := targets[0].Pos.Sub(m.Pos)
		dist := to.Len()
		if dist > aggroRange || dist < 1 {
			continue
		}
		step := speed * dt
		if step > dist-1 {
			step = dist - 1
		}
		dir := to.Normalize()
		m.Dir = dir
		m.Pos = m.Pos.Add(dir.Mul(step))
		m.State = StateWalk
		moved = append(moved, m.ID)
	}
	return moved
}

// Lerp returns the point frac of the way from from to to.
func Lerp(from, to mgl64.Vec3, frac float64) mgl64.Vec3 {
	return from.Add(to.Sub(from).Mul(frac))
}
