package chat

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/consult-case-service/internal/broadcast"
	"github.com/spec-kit/consult-case-service/internal/domain"
)

// ManagerConfig wires the session manager to its collaborators.
type ManagerConfig struct {
	Topic    string
	Cases    CaseReader
	Messages MessageStore
	Uploads  Uploader
	Channel  broadcast.Channel
	Logger   *zap.Logger
}

// Manager owns at most one synchronizer per (case, participant), so every
// view of an open case shares a single authoritative transcript. Resource
// usage is bounded by the number of open sessions, each released by Close.
type Manager struct {
	cfg ManagerConfig

	mu       sync.Mutex
	sessions map[string]*Synchronizer
}

// NewManager builds an empty session manager.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Manager{cfg: cfg, sessions: make(map[string]*Synchronizer)}
}

func sessionKey(caseID, participantID string) string {
	return caseID + "|" + participantID
}

// Open returns the session for the case and participant, creating it on
// first use. The underlying synchronizer Open is idempotent, so repeated
// calls simply re-issue the initial load.
func (m *Manager) Open(ctx context.Context, caseID string, participant domain.Sender) (*Synchronizer, error) {
	key := sessionKey(caseID, participant.ID)

	m.mu.Lock()
	session, ok := m.sessions[key]
	if !ok {
		session = NewSynchronizer(Config{
			CaseID:      caseID,
			Participant: participant,
			Topic:       m.cfg.Topic,
			Cases:       m.cfg.Cases,
			Messages:    m.cfg.Messages,
			Uploads:     m.cfg.Uploads,
			Channel:     m.cfg.Channel,
			Logger:      m.cfg.Logger,
		})
		m.sessions[key] = session
	}
	m.mu.Unlock()

	// A failed open leaves the session mapped but unopened. Deleting it
	// here could orphan a concurrent Open on the same session that went on
	// to subscribe; an unopened session holds no resources and the next
	// Open retries the load.
	if err := session.Open(ctx); err != nil {
		return nil, err
	}
	return session, nil
}

// Get returns an already-open session without reloading it. Sessions whose
// open never completed are invisible.
func (m *Manager) Get(caseID, participantID string) (*Synchronizer, bool) {
	m.mu.Lock()
	session, ok := m.sessions[sessionKey(caseID, participantID)]
	m.mu.Unlock()
	if !ok || !session.isOpen() {
		return nil, false
	}
	return session, true
}

// Close tears down one session. Safe when no such session exists.
func (m *Manager) Close(caseID, participantID string) {
	key := sessionKey(caseID, participantID)
	m.mu.Lock()
	session, ok := m.sessions[key]
	delete(m.sessions, key)
	m.mu.Unlock()
	if ok {
		session.Close()
	}
}

// CloseAll tears down every session; called at shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := make([]*Synchronizer, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}
	m.sessions = make(map[string]*Synchronizer)
	m.mu.Unlock()

	for _, session := range sessions {
		session.Close()
	}
}
