// Package session keeps per-user bot state in memory: saved refinement
// preferences and a short history of refined prompts.
package session

import (
	"maps"
	"sync"
	"time"
)

type HistoryEntry struct {
	Prompt   string
	Refined  string
	Category string
	Success  bool
	At       time.Time
}

type Session struct {
	UserID         int64
	Username       string
	Customizations map[string]string
	UseGPT         bool
	History        []HistoryEntry
	LastActivity   time.Time
}

type Options struct {
	MaxHistory int
	Now        func() time.Time
}

type Store struct {
	mu         sync.Mutex
	sessions   map[int64]*Session
	maxHistory int
	now        func() time.Time
}

func NewStore(opts Options) *Store {
	maxHistory := opts.MaxHistory
	if maxHistory <= 0 {
		maxHistory = 5
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Store{
		sessions:   make(map[int64]*Session),
		maxHistory: maxHistory,
		now:        now,
	}
}

// Snapshot returns a copy that callers may modify freely.
func (s *Store) Snapshot(userID int64, username string) Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getOrCreateLocked(userID, username)
	sess.LastActivity = s.now()
	return clone(sess)
}

// SetPreferences merges values into the saved customizations.
func (s *Store) SetPreferences(userID int64, username string, values map[string]string, useGPT *bool) Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getOrCreateLocked(userID, username)
	maps.Copy(sess.Customizations, values)
	if useGPT != nil {
		sess.UseGPT = *useGPT
	}
	sess.LastActivity = s.now()
	return clone(sess)
}

// Reset clears saved preferences and history.
func (s *Store) Reset(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[userID]; ok {
		sess.Customizations = map[string]string{}
		sess.UseGPT = false
		sess.History = nil
		sess.LastActivity = s.now()
	}
}

func (s *Store) Append(userID int64, username string, entries ...HistoryEntry) {
	if len(entries) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getOrCreateLocked(userID, username)
	sess.LastActivity = s.now()

	sess.History = append(sess.History, entries...)
	if len(sess.History) > s.maxHistory {
		sess.History = sess.History[len(sess.History)-s.maxHistory:]
	}
}

// Prune drops sessions idle for longer than maxIdle and reports how many
// were removed.
func (s *Store) Prune(maxIdle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-maxIdle)
	removed := 0
	for id, sess := range s.sessions {
		if sess.LastActivity.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

func (s *Store) getOrCreateLocked(userID int64, username string) *Session {
	sess, ok := s.sessions[userID]
	if !ok {
		sess = &Session{UserID: userID, Customizations: map[string]string{}}
		s.sessions[userID] = sess
	}
	if username != "" {
		sess.Username = username
	}
	return sess
}

func clone(sess *Session) Session {
	out := *sess
	out.Customizations = maps.Clone(sess.Customizations)
	out.History = append([]HistoryEntry(nil), sess.History...)
	return out
}
