package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agentscope-ai/agentscope-go/llm"
)

// ManagerConfig tunes session lifecycle and history windowing.
type ManagerConfig struct {
	MaxIdle       time.Duration `yaml:"max_idle" json:"max_idle"`             // evict from memory after this idle time
	EvictInterval time.Duration `yaml:"evict_interval" json:"evict_interval"` // eviction sweep cadence
	MaxMessages   int           `yaml:"max_messages" json:"max_messages"`     // history cap by count, 0 unlimited
	MaxTokens     int           `yaml:"max_tokens" json:"max_tokens"`         // history cap by tokens, 0 unlimited
	TokenModel    string        `yaml:"token_model" json:"token_model"`       // model for token counting
}

// DefaultManagerConfig returns the manager defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		MaxIdle:       30 * time.Minute,
		EvictInterval: time.Minute,
		MaxMessages:   200,
		TokenModel:    "gpt-4o",
	}
}

type liveSession struct {
	state    *State
	lastUsed time.Time
}

// Manager owns the live session set. Sessions are cached in memory, written
// through to the Store on every mutation, and evicted from memory after
// MaxIdle (the persisted copy survives eviction).
type Manager struct {
	cfg     ManagerConfig
	store   Store
	counter TokenCounter
	logger  *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*liveSession

	done      chan struct{}
	closeOnce sync.Once
}

// Option configures a Manager.
type Option func(*Manager)

// WithTokenCounter overrides the default tiktoken-based counter.
func WithTokenCounter(c TokenCounter) Option {
	return func(m *Manager) { m.counter = c }
}

// NewManager creates a manager over the given store and starts the eviction
// loop. A nil store defaults to in-memory.
func NewManager(cfg ManagerConfig, store Store, logger *zap.Logger, opts ...Option) *Manager {
	def := DefaultManagerConfig()
	if cfg.MaxIdle == 0 {
		cfg.MaxIdle = def.MaxIdle
	}
	if cfg.EvictInterval == 0 {
		cfg.EvictInterval = def.EvictInterval
	}
	if cfg.TokenModel == "" {
		cfg.TokenModel = def.TokenModel
	}
	if store == nil {
		store = NewMemoryStore()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Manager{
		cfg:      cfg,
		store:    store,
		counter:  NewTiktokenCounter(cfg.TokenModel),
		logger:   logger.With(zap.String("component", "session_manager")),
		sessions: make(map[string]*liveSession),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	go m.evictLoop()
	return m
}

// Create starts a new session. An empty id gets a generated UUID.
func (m *Manager) Create(ctx context.Context, id string) (*State, error) {
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now()
	state := &State{ID: id, CreatedAt: now, UpdatedAt: now}

	if err := m.store.Save(ctx, state); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[id] = &liveSession{state: state, lastUsed: now}
	m.mu.Unlock()

	m.logger.Info("session created", zap.String("session_id", id))
	return state.Clone(), nil
}

// Get returns a session, loading it from the store when not in memory.
func (m *Manager) Get(ctx context.Context, id string) (*State, error) {
	m.mu.Lock()
	if live, ok := m.sessions[id]; ok {
		live.lastUsed = time.Now()
		state := live.state.Clone()
		m.mu.Unlock()
		return state, nil
	}
	m.mu.Unlock()

	state, err := m.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[id] = &liveSession{state: state, lastUsed: time.Now()}
	m.mu.Unlock()
	return state.Clone(), nil
}

// Delete removes a session from memory and the store.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return m.store.Delete(ctx, id)
}

// Append adds messages to a session's history, applies the history window,
// and persists the result.
func (m *Manager) Append(ctx context.Context, id string, messages ...llm.Message) error {
	m.mu.Lock()
	live, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		state, err := m.store.Load(ctx, id)
		if err != nil {
			return err
		}
		live = &liveSession{state: state}
		m.mu.Lock()
		m.sessions[id] = live
		m.mu.Unlock()
	}

	m.mu.Lock()
	live.state.Messages = append(live.state.Messages, messages...)
	live.state.Messages = m.window(live.state.Messages)
	live.state.UpdatedAt = time.Now()
	live.lastUsed = live.state.UpdatedAt
	state := live.state.Clone()
	m.mu.Unlock()

	return m.store.Save(ctx, state)
}

// History returns the windowed message history of a session.
func (m *Manager) History(ctx context.Context, id string) ([]llm.Message, error) {
	state, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return state.Messages, nil
}

// SetMetadata stores one metadata entry on a session.
func (m *Manager) SetMetadata(ctx context.Context, id, key, value string) error {
	m.mu.Lock()
	live, ok := m.sessions[id]
	if ok {
		if live.state.Metadata == nil {
			live.state.Metadata = make(map[string]string)
		}
		live.state.Metadata[key] = value
		live.state.UpdatedAt = time.Now()
		live.lastUsed = live.state.UpdatedAt
		state := live.state.Clone()
		m.mu.Unlock()
		return m.store.Save(ctx, state)
	}
	m.mu.Unlock()

	state, err := m.store.Load(ctx, id)
	if err != nil {
		return err
	}
	if state.Metadata == nil {
		state.Metadata = make(map[string]string)
	}
	state.Metadata[key] = value
	state.UpdatedAt = time.Now()

	m.mu.Lock()
	m.sessions[id] = &liveSession{state: state, lastUsed: state.UpdatedAt}
	state = state.Clone()
	m.mu.Unlock()
	return m.store.Save(ctx, state)
}

// CountTokens reports the token footprint of a session's history.
func (m *Manager) CountTokens(ctx context.Context, id string) (int, error) {
	history, err := m.History(ctx, id)
	if err != nil {
		return 0, err
	}
	return m.counter.CountMessages(history)
}

// Live reports how many sessions are resident in memory.
func (m *Manager) Live() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close stops the eviction loop and closes the store.
func (m *Manager) Close() error {
	var err error
	m.closeOnce.Do(func() {
		close(m.done)
		err = m.store.Close()
	})
	return err
}

// window trims history to the configured message and token budgets, always
// keeping a leading system message.
func (m *Manager) window(messages []llm.Message) []llm.Message {
	var system *llm.Message
	rest := messages
	if len(messages) > 0 && messages[0].Role == llm.RoleSystem {
		system = &messages[0]
		rest = messages[1:]
	}

	if m.cfg.MaxMessages > 0 && len(rest) > m.cfg.MaxMessages {
		rest = rest[len(rest)-m.cfg.MaxMessages:]
	}

	if m.cfg.MaxTokens > 0 {
		for len(rest) > 1 {
			total, err := m.counter.CountMessages(rest)
			if err != nil {
				m.logger.Warn("token count failed, skipping token window", zap.Error(err))
				break
			}
			if total <= m.cfg.MaxTokens {
				break
			}
			rest = rest[1:]
		}
	}

	if system == nil {
		return rest
	}
	out := make([]llm.Message, 0, len(rest)+1)
	out = append(out, *system)
	return append(out, rest...)
}

func (m *Manager) evictLoop() {
	ticker := time.NewTicker(m.cfg.EvictInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.evictIdle()
		}
	}
}

func (m *Manager) evictIdle() {
	cutoff := time.Now().Add(-m.cfg.MaxIdle)

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, live := range m.sessions {
		if live.lastUsed.Before(cutoff) {
			delete(m.sessions, id)
			m.logger.Debug("session evicted from memory", zap.String("session_id", id))
		}
	}
}
