// Package rendertest provides an in-memory browser for tests.
package rendertest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/elonfeng/csfd2imdb/pkg/render"
)

// Browser serves canned pages to the sessions it launches. Faults are
// consumed one per Navigate call across all sessions; a nil entry means the
// navigation succeeds.
type Browser struct {
	mu sync.Mutex

	Pages     map[string]string
	Faults    []error
	LaunchErr error

	Launches   int
	Navigation []string
	Clicks     int
}

// Launcher returns a render.Launcher backed by b.
func (b *Browser) Launcher() render.Launcher {
	return func(ctx context.Context) (render.Session, error) {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.Launches++
		if b.LaunchErr != nil {
			return nil, b.LaunchErr
		}
		return &session{b: b}, nil
	}
}

type session struct {
	b       *Browser
	current string
	dead    bool
	closed  bool
}

func (s *session) Navigate(ctx context.Context, url string) error {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	if s.dead || s.closed {
		return render.ErrSessionDead
	}
	s.b.Navigation = append(s.b.Navigation, url)
	if len(s.b.Faults) > 0 {
		fault := s.b.Faults[0]
		s.b.Faults = s.b.Faults[1:]
		if fault != nil {
			if errors.Is(fault, render.ErrSessionDead) {
				s.dead = true
			}
			return fault
		}
	}
	s.current = url
	return nil
}

func (s *session) Click(ctx context.Context, selector string, timeout time.Duration) (bool, error) {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	if s.dead || s.closed {
		return false, render.ErrSessionDead
	}
	if !s.has(selector) {
		return false, nil
	}
	s.b.Clicks++
	return true, nil
}

func (s *session) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	if s.dead || s.closed {
		return render.ErrSessionDead
	}
	if !s.has(selector) {
		return render.ErrTimeout
	}
	return nil
}

func (s *session) HTML(ctx context.Context) (string, error) {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	if s.dead || s.closed {
		return "", render.ErrSessionDead
	}
	return s.b.Pages[s.current], nil
}

func (s *session) Close() error {
	s.closed = true
	return nil
}

func (s *session) has(selector string) bool {
	page, ok := s.b.Pages[s.current]
	if !ok {
		return false
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return false
	}
	return doc.Find(selector).Length() > 0
}
