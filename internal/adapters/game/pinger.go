package game

import (
	"context"
	"log"
	"os"
	"time"
)

// healthEndpoint is the cheapest game view that still refreshes the session
const healthEndpoint = "view=updateGlobalData"

// HealthPinger keeps the session warm and detects expiry early by issuing a
// periodic cheap GET. It bypasses the session's own expiry handling so it can
// trigger re-login itself without burning the request's one retry.
type HealthPinger struct {
	session  *Session
	interval time.Duration
	logger   *log.Logger

	stop chan struct{}
	done chan struct{}
}

// NewHealthPinger creates a pinger for the session; not started
func NewHealthPinger(session *Session, interval time.Duration) *HealthPinger {
	return &HealthPinger{
		session:  session,
		interval: interval,
		logger:   log.New(os.Stderr, "[pinger] ", log.LstdFlags),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the background loop
func (p *HealthPinger) Start(ctx context.Context) {
	go p.run(ctx)
}

// Stop terminates the loop and waits for it to exit
func (p *HealthPinger) Stop() {
	close(p.stop)
	<-p.done
}

func (p *HealthPinger) run(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.ping(ctx)
		}
	}
}

func (p *HealthPinger) ping(ctx context.Context) {
	body, err := p.session.Get(ctx, healthEndpoint, &Options{IgnoreExpiry: true})
	if err != nil {
		p.logger.Printf("health ping failed: %v", err)
		return
	}
	if IsExpired(body) {
		p.logger.Printf("health ping saw expired session, re-authenticating")
		if err := p.session.Reauthenticate(ctx); err != nil {
			p.logger.Printf("re-authentication failed: %v", err)
		}
	}
}

// StartPinger attaches and starts a health pinger on the session
func (s *Session) StartPinger(ctx context.Context) {
	if s.pinger != nil {
		return
	}
	s.pinger = NewHealthPinger(s, s.cfg.HealthInterval)
	s.pinger.Start(ctx)
}

// StopPinger stops the pinger if one is running
func (s *Session) StopPinger() {
	if s.pinger != nil {
		s.pinger.Stop()
		s.pinger = nil
	}
}
