package main

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/theodore86/github-rate-limits-exporter/pkg/github"
)

type stubSource struct {
	limits github.RateLimits
	err    error
}

func (s stubSource) GetRateLimits(ctx context.Context) (github.RateLimits, error) {
	return s.limits, s.err
}

var testNow = time.Date(2013, 7, 1, 17, 0, 0, 0, time.UTC)

func fixture() github.RateLimits {
	return github.RateLimits{Resources: map[string]github.RateLimit{
		"core":   {Limit: 5000, Used: 1, Remaining: 4999, Reset: testNow.Add(30 * time.Minute).Unix()},
		"search": {Limit: 30, Used: 12, Remaining: 18, Reset: testNow.Add(time.Minute).Unix()},
	}}
}

func TestFetchData(t *testing.T) {
	msg := fetchData(stubSource{limits: fixture()})()
	data, ok := msg.(dataMsg)
	if !ok {
		t.Fatalf("fetchData returned %T, want dataMsg", msg)
	}
	if data.err != nil || data.limits.Get("search").Used != 12 {
		t.Errorf("unexpected dataMsg %+v", data)
	}
}

func TestModel_UpdateAndView(t *testing.T) {
	m := initialModel("theodore86", stubSource{})
	m.now = func() time.Time { return testNow }

	if !strings.Contains(m.View(), "Fetching rate limits for theodore86") {
		t.Errorf("initial view = %q", m.View())
	}

	updated, _ := m.Update(dataMsg{limits: fixture(), at: testNow})
	m = updated.(model)

	view := m.View()
	for _, want := range []string{"core", "search", "graphql", "integration_manifest", "code_scanning_upload", "12/30", "1/5000", "in 30m0s", "Online"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
	if len(m.history) != 1 {
		t.Errorf("history length = %d, want 1", len(m.history))
	}
}

func TestModel_UpdateError(t *testing.T) {
	m := initialModel("theodore86", stubSource{})
	updated, _ := m.Update(dataMsg{err: errors.New("401 Bad credentials"), at: testNow})
	m = updated.(model)

	if !strings.Contains(m.View(), "Offline: 401 Bad credentials") {
		t.Errorf("view does not report the error:\n%s", m.View())
	}
}

func TestModel_HistoryIsBounded(t *testing.T) {
	m := initialModel("theodore86", stubSource{})
	for i := 0; i < maxHistory+5; i++ {
		updated, _ := m.Update(dataMsg{limits: fixture(), at: testNow.Add(time.Duration(i) * time.Second)})
		m = updated.(model)
	}
	if len(m.history) != maxHistory {
		t.Errorf("history length = %d, want %d", len(m.history), maxHistory)
	}
}

func TestModel_Quit(t *testing.T) {
	m := initialModel("theodore86", stubSource{})
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("expected a quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q did not quit")
	}
}

func TestRenderBar(t *testing.T) {
	tests := []struct {
		used, limit int64
		filled      int
	}{
		{0, 0, 0},
		{0, 5000, 0},
		{15, 30, 5},
		{30, 30, 10},
		{45, 30, 10},
	}

	for _, tt := range tests {
		bar := renderBar(tt.used, tt.limit, 10)
		if got := strings.Count(bar, "█"); got != tt.filled {
			t.Errorf("renderBar(%d, %d) filled = %d, want %d", tt.used, tt.limit, got, tt.filled)
		}
		if got := strings.Count(bar, "█") + strings.Count(bar, "░"); got != 10 {
			t.Errorf("renderBar(%d, %d) width = %d, want 10", tt.used, tt.limit, got)
		}
	}
}

func TestFormatReset(t *testing.T) {
	tests := []struct {
		reset int64
		want  string
	}{
		{0, "-"},
		{testNow.Add(-time.Minute).Unix(), "now"},
		{testNow.Add(90 * time.Second).Unix(), "in 1m30s"},
	}

	for _, tt := range tests {
		if got := formatReset(tt.reset, testNow); got != tt.want {
			t.Errorf("formatReset(%d) = %q, want %q", tt.reset, got, tt.want)
		}
	}
}
