package server

import (
	"fmt"

	"battl3ship/game"
	"battl3ship/protocol"
)

// chat 原样转发；origin_id 强制为发送者
func (r *Registry) chat(p *Participant, msg *protocol.Chat) {
	out := &protocol.Chat{Text: msg.Text, OriginID: protocol.Int(int(p.ID)), RecipientID: msg.RecipientID}
	out.From(int(p.ID))
	for _, q := range r.players {
		if q == p {
			continue
		}
		if msg.RecipientID == nil || game.Identity(*msg.RecipientID) == q.ID {
			r.send(q, out)
		}
	}
}

func (r *Registry) challenge(p *Participant, msg *protocol.Challenge) error {
	if game.Identity(msg.OriginID) != p.ID {
		return kick("Are you spoofing me?", fmt.Errorf("challenge origin %d", msg.OriginID))
	}
	if msg.RecipientID != nil && *msg.RecipientID == msg.OriginID {
		return kick("You can't challenge yourself.", nil)
	}
	if r.pendingFrom(p.ID) != nil {
		return kick("Don't spam challenges.", nil)
	}
	if msg.RecipientID != nil {
		target := r.active(game.Identity(*msg.RecipientID))
		if target == nil {
			return kick(fmt.Sprintf("Challenged player %d is not connected.", *msg.RecipientID), nil)
		}
		if r.matches[game.MatchID(p.ID, target.ID)] != nil || r.matches[game.MatchID(target.ID, p.ID)] != nil {
			return kick("Cannot duplicate game.", nil)
		}
	}
	if r.matchOf(p.ID) != nil {
		return kick("Cannot challenge while playing.", &game.StateError{Reason: "already in a match"})
	}

	// 已有发给自己的或公开的邀请：视为接受
	if cross := r.crossChallenge(p.ID); cross != nil {
		Log.Infof("challenge from %v crosses challenge from %d, accepting", p, cross.OriginID)
		return r.acceptChallenge(p, &protocol.AcceptChallenge{OriginID: cross.OriginID, RecipientID: protocol.Int(int(p.ID))})
	}

	posted := &protocol.Challenge{
		ChallengeID: msg.ChallengeID,
		OriginID:    msg.OriginID,
		RecipientID: msg.RecipientID,
		Text:        msg.Text,
	}
	posted.From(int(p.ID))
	r.pending = append(r.pending, posted)
	Log.Infof("challenge posted by %v (open=%v)", p, posted.Open())
	for _, q := range r.players {
		if q == p || posted.Targets(int(q.ID)) {
			r.send(q, posted)
		}
	}
	return nil
}

func (r *Registry) cancelChallenge(p *Participant, msg *protocol.CancelChallenge) error {
	if game.Identity(msg.OriginID) != p.ID {
		return kick("Are you spoofing me?", fmt.Errorf("cancel origin %d", msg.OriginID))
	}
	ch := r.pendingFrom(p.ID)
	if ch == nil {
		Log.Debugf("cancel from %v without a pending challenge", p)
		return nil
	}
	r.removePending(ch)
	r.notifyCancel(ch, ServerIdentity)
	return nil
}

func (r *Registry) acceptChallenge(p *Participant, msg *protocol.AcceptChallenge) error {
	ch := r.pendingFrom(game.Identity(msg.OriginID))
	if ch == nil {
		Log.Debugf("accept from %v for unknown challenge of %d", p, msg.OriginID)
		return nil
	}
	if !ch.Targets(int(p.ID)) {
		return kick("Don't try to fool us!", fmt.Errorf("challenge of %d targets %d", ch.OriginID, *ch.RecipientID))
	}
	if game.Identity(ch.OriginID) == p.ID {
		return kick("You can't accept your own challenge.", nil)
	}
	if r.matchOf(p.ID) != nil {
		return kick("Cannot accept while playing.", &game.StateError{Reason: "already in a match"})
	}
	origin := r.active(game.Identity(ch.OriginID))
	if origin == nil {
		Log.Debugf("accept from %v for challenge of departed %d", p, ch.OriginID)
		return nil
	}

	starting := origin.ID
	if r.rng.Intn(2) == 1 {
		starting = p.ID
	}
	m, err := game.NewMatch(origin.ID, p.ID, starting, r.rules)
	if err != nil {
		Log.Errorf("create match %v vs %v: %v", origin, p, err)
		return nil
	}
	if _, exists := r.matches[m.ID()]; exists {
		Log.Errorf("match id collision for %s, refusing to overwrite", m.ID())
		return nil
	}
	r.matches[m.ID()] = m
	r.metrics.IncMatchesStarted()
	Log.Infof("match %s started, %d shoots first", m.ID(), starting)

	start := &protocol.StartGame{PlayerAID: int(origin.ID), PlayerBID: int(p.ID), StartingID: int(starting)}
	start.From(int(ServerIdentity))
	r.send(origin, start)
	r.send(p, start)

	// 两位玩家的其他邀请一并撤销，对局双方已由 StartGame 得知
	var cancelled []*protocol.Challenge
	kept := r.pending[:0]
	for _, c := range r.pending {
		o := game.Identity(c.OriginID)
		if o == origin.ID || o == p.ID {
			cancelled = append(cancelled, c)
			continue
		}
		kept = append(kept, c)
	}
	r.pending = kept
	for _, c := range cancelled {
		r.notifyCancel(c, origin.ID, p.ID)
	}
	return nil
}

func (r *Registry) placeBoats(p *Participant, msg *protocol.ProposeBoardPlacement) error {
	m := r.matchOf(p.ID)
	if m == nil {
		return kick("Error! Board placement for game not active", nil)
	}
	boats := make([]game.Boat, 0, len(msg.Boats))
	for _, rcs := range msg.Boats {
		boat, err := toCoords(rcs)
		if err != nil {
			return kick("Invalid boat placement!", err)
		}
		boats = append(boats, boat)
	}
	ready, err := m.Place(p.ID, boats)
	if err != nil {
		return kick("Invalid boat placement!", err)
	}
	if ready {
		Log.Infof("match %s accepting shots, %d to play", m.ID(), m.Turn())
		prompt := &protocol.Shot{}
		prompt.From(int(ServerIdentity))
		if q := r.byID[m.Turn()]; q != nil {
			r.send(q, prompt)
		}
	}
	return nil
}

func (r *Registry) shoot(p *Participant, msg *protocol.Shot) error {
	m := r.matchOf(p.ID)
	if m == nil {
		return kick("Shot in a non-active game.", nil)
	}
	if !m.AcceptingShots() {
		return kick("Shot in a game not accepting shots.", nil)
	}
	if m.Turn() != p.ID {
		return kick("Shooting not in your turn.", nil)
	}
	volley, err := toCoords(msg.Shots)
	if err != nil {
		return kick("Invalid shot", err)
	}
	out, err := m.Shoot(p.ID, volley)
	if err != nil {
		return kick("Invalid shot", err)
	}

	result := &protocol.ShotResult{Hit: out.Hit, Sunk: out.Sunk, Finished: out.Finished}
	result.From(int(ServerIdentity))
	r.send(p, result)
	opponent, _ := m.Opponent(p.ID)
	if q := r.byID[opponent]; q != nil {
		fwd := &protocol.Shot{Shots: msg.Shots}
		fwd.From(int(p.ID))
		r.send(q, fwd)
	}

	if out.Finished {
		delete(r.matches, m.ID())
		r.metrics.IncMatchesFinished()
		if b, ok := m.Board(opponent); ok {
			Log.Debugf("match %s final board of %d:\n%s", m.ID(), opponent, b)
		}
		Log.Infof("match %s finished, winner %v", m.ID(), p)
	}
	return nil
}

func (r *Registry) pendingFrom(origin game.Identity) *protocol.Challenge {
	for _, ch := range r.pending {
		if game.Identity(ch.OriginID) == origin {
			return ch
		}
	}
	return nil
}

// crossChallenge 先找发给 id 的邀请，再找公开邀请；发起者已不在线的跳过
func (r *Registry) crossChallenge(id game.Identity) *protocol.Challenge {
	for _, ch := range r.pending {
		if ch.RecipientID != nil && game.Identity(*ch.RecipientID) == id && r.active(game.Identity(ch.OriginID)) != nil {
			return ch
		}
	}
	for _, ch := range r.pending {
		if ch.Open() && game.Identity(ch.OriginID) != id && r.active(game.Identity(ch.OriginID)) != nil {
			return ch
		}
	}
	return nil
}

func (r *Registry) removePending(target *protocol.Challenge) {
	for i, ch := range r.pending {
		if protocol.SameChallenge(ch, target) {
			r.pending = append(r.pending[:i], r.pending[i+1:]...)
			return
		}
	}
}

// notifyCancel 通知能看到该邀请的玩家，skip 中的身份除外
func (r *Registry) notifyCancel(ch *protocol.Challenge, skip ...game.Identity) {
	cancel := &protocol.CancelChallenge{OriginID: ch.OriginID}
	cancel.From(int(ServerIdentity))
outer:
	for _, q := range r.players {
		for _, id := range skip {
			if q.ID == id {
				continue outer
			}
		}
		if game.Identity(ch.OriginID) == q.ID || ch.Targets(int(q.ID)) {
			r.send(q, cancel)
		}
	}
}

func toCoords(rcs []protocol.RowCol) ([]game.Coord, error) {
	coords := make([]game.Coord, 0, len(rcs))
	for _, rc := range rcs {
		row, col, ok := rc.Pair()
		if !ok {
			return nil, &game.ValidationError{Reason: fmt.Sprintf("coordinate %v is not a [row, col] pair", []int(rc))}
		}
		coords = append(coords, game.Coord{Row: row, Col: col})
	}
	return coords, nil
}
