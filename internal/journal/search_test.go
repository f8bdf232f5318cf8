package journal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mymindmirror/mindmirror/internal/crypto"
)

func TestSearchKeyword_CaseInsensitive(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	for _, text := range []string{"happy day", "sad day", "happy again"} {
		if _, err := svc.Create(ctx, testSession, text, time.Time{}); err != nil {
			t.Fatal(err)
		}
	}

	for _, keyword := range []string{"happy", "HAPPY"} {
		matches, err := svc.SearchKeyword(ctx, testSession, keyword)
		if err != nil {
			t.Fatal(err)
		}
		if len(matches) != 2 {
			t.Fatalf("keyword %q: expected 2 matches, got %d", keyword, len(matches))
		}
		for _, m := range matches {
			if m.Text != "happy day" && m.Text != "happy again" {
				t.Errorf("keyword %q: unexpected match %q", keyword, m.Text)
			}
		}
	}
}

func TestSearchKeyword_NoMatches(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	if _, err := svc.Create(ctx, testSession, "quiet evening", time.Time{}); err != nil {
		t.Fatal(err)
	}

	matches, err := svc.SearchKeyword(ctx, testSession, "storm")
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 0 {
		t.Errorf("expected no matches, got %d", len(matches))
	}
}

func TestSearchKeyword_ScopedToOwner(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	if _, err := svc.Create(ctx, testSession, "shared keyword", time.Time{}); err != nil {
		t.Fatal(err)
	}
	other := Session{OwnerID: "owner-2", Secret: "other-secret"}
	if _, err := svc.Create(ctx, other, "shared keyword too", time.Time{}); err != nil {
		t.Fatal(err)
	}

	matches, err := svc.SearchKeyword(ctx, testSession, "shared")
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 || matches[0].OwnerID != testSession.OwnerID {
		t.Errorf("expected only the caller's entry, got %d matches", len(matches))
	}
}

func TestSearch_RequiresSecret(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	if _, err := svc.Create(ctx, testSession, "locked away", time.Time{}); err != nil {
		t.Fatal(err)
	}

	noSecret := Session{OwnerID: testSession.OwnerID}
	if _, err := svc.SearchKeyword(ctx, noSecret, "locked"); !errors.Is(err, crypto.ErrNoSecret) {
		t.Errorf("SearchKeyword without secret: expected ErrNoSecret, got %v", err)
	}
	if _, err := svc.SearchMoodRange(ctx, noSecret, -1, 1); !errors.Is(err, crypto.ErrNoSecret) {
		t.Errorf("SearchMoodRange without secret: expected ErrNoSecret, got %v", err)
	}
}

func TestSearchMoodRange(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	// Default fake oracle scores every entry 0.5.
	entry, err := svc.Create(ctx, testSession, "an okay day", time.Time{})
	if err != nil {
		t.Fatal(err)
	}

	matches, err := svc.SearchMoodRange(ctx, testSession, 0.0, 1.0)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 || matches[0].ID != entry.ID {
		t.Fatalf("expected the scored entry, got %d matches", len(matches))
	}
	if matches[0].Text != "an okay day" {
		t.Errorf("expected decrypted text for display, got %q", matches[0].Text)
	}

	matches, err = svc.SearchMoodRange(ctx, testSession, -1.0, 0.0)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 0 {
		t.Errorf("expected no matches below the score, got %d", len(matches))
	}
}
