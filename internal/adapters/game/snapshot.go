package game

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/andrescamacho/polisbot/internal/domain/account"
	"github.com/andrescamacho/polisbot/internal/domain/shared"
	"github.com/andrescamacho/polisbot/internal/infrastructure/config"
)

// Cookie is the minimal serialized form of one session cookie
type Cookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain,omitempty"`
	Path   string `json:"path,omitempty"`
}

// Snapshot is the plain record passed to a freshly spawned worker. It carries
// everything needed to reconstruct an equivalent session without inheriting
// OS-level client state.
type Snapshot struct {
	Host        string           `json:"host"`
	World       account.WorldID  `json:"world"`
	PlayerName  string           `json:"player_name"`
	CharacterID string           `json:"character_id"`
	Headers     map[string]string `json:"headers"`
	Cookies     []Cookie         `json:"cookies"`
	CSRF        string           `json:"csrf,omitempty"`
	CityID      string           `json:"city_id,omitempty"`
	Account     *account.Account `json:"account"`
}

// Serialize captures the session state as a plain record
func (s *Session) Serialize() *Snapshot {
	cookies := s.Cookies()
	out := make([]Cookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, Cookie{Name: c.Name, Value: c.Value, Domain: c.Domain, Path: c.Path})
	}

	return &Snapshot{
		Host:        s.host,
		World:       s.world,
		PlayerName:  s.playerName,
		CharacterID: s.characterID,
		Headers:     s.headers,
		Cookies:     out,
		CSRF:        s.tokens.CSRF(),
		CityID:      s.tokens.CityID(),
		Account:     s.account,
	}
}

// Restore reconstructs a session from a snapshot. The result has fresh
// rate-limiter state, fresh mutexes, no running pinger, and is marked as a
// worker session.
func Restore(snap *Snapshot, cfg config.SessionConfig, clock shared.Clock) (*Session, error) {
	s, err := NewSession(cfg, snap.Account, snap.Host, snap.World, snap.Headers, clock)
	if err != nil {
		return nil, err
	}
	s.SetIdentity(snap.PlayerName, snap.CharacterID)

	cookies := make([]*http.Cookie, 0, len(snap.Cookies))
	for _, c := range snap.Cookies {
		cookies = append(cookies, &http.Cookie{Name: c.Name, Value: c.Value, Domain: c.Domain, Path: c.Path})
	}
	if err := s.ApplyLogin(cookies, ""); err != nil {
		return nil, err
	}
	s.tokens.Seed(snap.CSRF, snap.CityID)
	s.MarkWorker()
	return s, nil
}

// ExportCookies serializes the minimal cookie set needed to restore this
// session elsewhere
func (s *Session) ExportCookies() ([]byte, error) {
	snap := s.Serialize()
	return json.Marshal(snap.Cookies)
}

// ImportCookies replaces the jar contents from an exported blob, then
// validates the result with one probe request that must not trip expiry
// detection.
func (s *Session) ImportCookies(ctx context.Context, blob []byte) error {
	var imported []Cookie
	if err := json.Unmarshal(blob, &imported); err != nil {
		return fmt.Errorf("failed to parse cookie blob: %w", err)
	}

	cookies := make([]*http.Cookie, 0, len(imported))
	for _, c := range imported {
		cookies = append(cookies, &http.Cookie{Name: c.Name, Value: c.Value, Domain: c.Domain, Path: c.Path})
	}
	if err := s.ApplyLogin(cookies, ""); err != nil {
		return err
	}

	body, err := s.Get(ctx, healthEndpoint, &Options{IgnoreExpiry: true})
	if err != nil {
		return fmt.Errorf("cookie validation probe failed: %w", err)
	}
	if IsExpired(body) {
		return shared.NewSessionExpiredError("imported cookies do not carry a live session")
	}
	return nil
}
