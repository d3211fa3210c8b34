package session

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func TestSetPreferencesMerges(t *testing.T) {
	s := NewStore(Options{})

	s.SetPreferences(1, "ann", map[string]string{"ageGroup": "adults"}, nil)
	on := true
	got := s.SetPreferences(1, "", map[string]string{"border": "without"}, &on)

	assert.Equal(t, map[string]string{"ageGroup": "adults", "border": "without"}, got.Customizations)
	assert.True(t, got.UseGPT)
	assert.Equal(t, "ann", got.Username)
}

func TestSnapshotIsACopy(t *testing.T) {
	s := NewStore(Options{})
	s.SetPreferences(1, "", map[string]string{"theme": "food"}, nil)
	s.Append(1, "", HistoryEntry{Prompt: "pizza"})

	snap := s.Snapshot(1, "")
	snap.Customizations["theme"] = "sports"
	snap.History[0].Prompt = "changed"

	again := s.Snapshot(1, "")
	assert.Equal(t, "food", again.Customizations["theme"])
	assert.Equal(t, "pizza", again.History[0].Prompt)
}

func TestAppendKeepsMostRecent(t *testing.T) {
	s := NewStore(Options{MaxHistory: 3})
	for i := 0; i < 5; i++ {
		s.Append(7, "", HistoryEntry{Prompt: fmt.Sprint(i)})
	}
	s.Append(7, "")

	hist := s.Snapshot(7, "").History
	require.Len(t, hist, 3)
	assert.Equal(t, "2", hist[0].Prompt)
	assert.Equal(t, "4", hist[2].Prompt)
}

func TestReset(t *testing.T) {
	s := NewStore(Options{})
	on := true
	s.SetPreferences(1, "", map[string]string{"complexity": "simple"}, &on)
	s.Append(1, "", HistoryEntry{Prompt: "x"})

	s.Reset(1)
	s.Reset(99)

	snap := s.Snapshot(1, "")
	assert.Empty(t, snap.Customizations)
	assert.False(t, snap.UseGPT)
	assert.Empty(t, snap.History)
}

func TestPrune(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := NewStore(Options{Now: clock.Now})

	s.Snapshot(1, "")
	clock.t = clock.t.Add(2 * time.Hour)
	s.Snapshot(2, "")

	assert.Equal(t, 1, s.Prune(time.Hour))
	assert.Equal(t, 0, s.Prune(time.Hour))
	assert.Empty(t, s.Snapshot(1, "").History)
}
