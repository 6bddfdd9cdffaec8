package game

import "time"

// presence tracks reconnection grace windows and the idle-room timer. It runs
// on its own scheduler so that pausing the game never stops it.
type presence struct {
	clock   *Scheduler
	grace   time.Duration
	idle    time.Duration
	pending map[string]Handle
	idleAt  Handle

	onExpire func(playerId string)
	onIdle   func()
}

func newPresence(now time.Time, grace, idle time.Duration, onExpire func(string), onIdle func()) *presence {
	return &presence{
		clock:    NewScheduler(now),
		grace:    grace,
		idle:     idle,
		pending:  make(map[string]Handle),
		onExpire: onExpire,
		onIdle:   onIdle,
	}
}

func (p *presence) startGrace(playerId string) {
	p.clock.Cancel(p.pending[playerId])
	p.pending[playerId] = p.clock.SetTimeout(func() {
		delete(p.pending, playerId)
		p.onExpire(playerId)
	}, p.grace)
}

// cancelGrace reports whether the player was still inside the window.
func (p *presence) cancelGrace(playerId string) bool {
	h, ok := p.pending[playerId]
	if !ok {
		return false
	}
	p.clock.Cancel(h)
	delete(p.pending, playerId)
	return true
}

func (p *presence) inGrace(playerId string) bool {
	_, ok := p.pending[playerId]
	return ok
}

// armIdle schedules disposal after delay. A pending idle timer is replaced.
func (p *presence) armIdle(delay time.Duration) {
	p.clock.Cancel(p.idleAt)
	p.idleAt = p.clock.SetTimeout(func() {
		p.idleAt = 0
		p.onIdle()
	}, delay)
}

func (p *presence) cancelIdle() {
	p.clock.Cancel(p.idleAt)
	p.idleAt = 0
}

func (p *presence) advance(now time.Time) {
	p.clock.Advance(now)
}

func (p *presence) stop() {
	p.clock.CancelAll()
	clear(p.pending)
	p.idleAt = 0
}
