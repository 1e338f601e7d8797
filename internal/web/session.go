// Package web provides the HTTP server and web UI for the fitness pattern finder.
package web

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/justestif/go-fitness-pattern-finder/internal/db"
)

const (
	sessionCookieName = "session_id"
	sessionTTL        = 24 * time.Hour
)

// Session represents an authenticated user session.
type Session struct {
	ID        string
	Token     *oauth2.Token
	UserID    string
	UserName  string
	Scope     string
	CreatedAt time.Time
}

// SessionManager stores sessions. The session ID travels in a cookie.
type SessionManager interface {
	Create(ctx context.Context, token *oauth2.Token, userID, userName, scope string) (*Session, error)
	Get(ctx context.Context, id string) *Session
	Delete(ctx context.Context, id string)
	UpdateToken(ctx context.Context, id string, token *oauth2.Token)
	DeleteExpired(ctx context.Context) (int64, error)
}

// MemorySessionStore keeps sessions in process memory. Sessions are lost on
// restart.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewMemorySessionStore returns an empty in-memory store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

func (s *MemorySessionStore) Create(_ context.Context, token *oauth2.Token, userID, userName, scope string) (*Session, error) {
	id, err := newSessionID()
	if err != nil {
		return nil, err
	}
	session := &Session{ID: id, Token: token, UserID: userID, UserName: userName, Scope: scope, CreatedAt: s.now()}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = session
	return session, nil
}

// Get returns nil for unknown or expired sessions.
func (s *MemorySessionStore) Get(_ context.Context, id string) *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if session, ok := s.sessions[id]; ok && !s.expired(session) {
		return session
	}
	return nil
}

func (s *MemorySessionStore) Delete(_ context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

func (s *MemorySessionStore) UpdateToken(_ context.Context, id string, token *oauth2.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[id]; ok {
		session.Token = token
	}
}

// DeleteExpired drops sessions older than sessionTTL.
func (s *MemorySessionStore) DeleteExpired(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, session := range s.sessions {
		if s.expired(session) {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}

func (s *MemorySessionStore) expired(session *Session) bool {
	return s.now().Sub(session.CreatedAt) > sessionTTL
}

// DBSessionStore keeps sessions, with their Strava tokens, in PostgreSQL.
type DBSessionStore struct {
	sessions *db.SessionRepository
	users    *db.UserRepository
	log      logrus.FieldLogger
}

// NewDBSessionStore returns a store backed by database. A nil log uses the
// standard logger.
func NewDBSessionStore(database *db.DB, log logrus.FieldLogger) *DBSessionStore {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &DBSessionStore{sessions: database.Sessions(), users: database.Users(), log: log}
}

func (s *DBSessionStore) Create(ctx context.Context, token *oauth2.Token, userID, userName, scope string) (*Session, error) {
	id, err := newSessionID()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	row := &db.Session{
		ID:           id,
		UserID:       userID,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenExpiry:  token.Expiry,
		Scope:        scope,
		CreatedAt:    now,
		ExpiresAt:    now.Add(sessionTTL),
	}
	if err := s.sessions.Create(ctx, row); err != nil {
		return nil, fmt.Errorf("storing session: %w", err)
	}
	return &Session{ID: id, Token: token, UserID: userID, UserName: userName, Scope: scope, CreatedAt: now}, nil
}

// Get returns nil when the session or its user is gone.
func (s *DBSessionStore) Get(ctx context.Context, id string) *Session {
	row, err := s.sessions.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			s.log.WithError(err).Warn("loading session")
		}
		return nil
	}
	user, err := s.users.Get(ctx, row.UserID)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			s.log.WithError(err).WithField("user_id", row.UserID).Warn("loading session user")
		}
		return nil
	}

	return &Session{
		ID: row.ID,
		Token: &oauth2.Token{
			AccessToken:  row.AccessToken,
			RefreshToken: row.RefreshToken,
			Expiry:       row.TokenExpiry,
			TokenType:    "Bearer",
		},
		UserID:    row.UserID,
		UserName:  user.DisplayName,
		Scope:     row.Scope,
		CreatedAt: row.CreatedAt,
	}
}

func (s *DBSessionStore) Delete(ctx context.Context, id string) {
	if err := s.sessions.Delete(ctx, id); err != nil {
		s.log.WithError(err).Warn("deleting session")
	}
}

func (s *DBSessionStore) UpdateToken(ctx context.Context, id string, token *oauth2.Token) {
	if err := s.sessions.UpdateToken(ctx, id, token.AccessToken, token.RefreshToken, token.Expiry); err != nil {
		s.log.WithError(err).Warn("updating session token")
	}
}

func (s *DBSessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	return s.sessions.DeleteExpired(ctx)
}

func newSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating session id: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// sessionFromRequest resolves the cookie's session, or nil.
func sessionFromRequest(r *http.Request, m SessionManager) *Session {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	return m.Get(r.Context(), cookie.Value)
}

func writeSessionCookie(w http.ResponseWriter, session *Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    session.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(sessionTTL.Seconds()),
	})
}

func expireSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

var (
	_ SessionManager = (*MemorySessionStore)(nil)
	_ SessionManager = (*DBSessionStore)(nil)
)
