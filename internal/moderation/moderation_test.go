package moderation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/tbourn/go-meal-backend/internal/domain"
)

func TestEvaluate(t *testing.T) {
	cases := []struct {
		name   string
		text   string
		spam   bool
		reason string
	}{
		{"empty", "", false, ""},
		{"whitespace", "   \n\t", false, ""},
		{"plain meal note", "Grilled salmon with rice and miso soup. Delicious!", false, ""},
		{"single link", "Recipe here: https://example.org/salmon", false, ""},
		{"two links", "https://a.example/1 and https://b.example/2", false, ""},
		{"promo keyword", "Use my PROMO CODE for 20% off", true, ReasonBannedWord},
		{"referral link", "sign up with my referral link", true, ReasonBannedWord},
		{"url-like token", "visit www.cheap-pills.com today", true, ReasonBannedWord},
		{"shortener", "see bit.ly/abc123", true, ReasonBannedWord},
		{"suspicious tld", "go to winner.xyz now", true, ReasonBannedWord},
		{"japanese spam", "簡単に稼げる副業を紹介します", true, ReasonBannedWord},
		{"abuse", "just kys", true, ReasonBannedWord},
		{"fullwidth promo", "ＰＲＯＭＯ ＣＯＤＥ inside", true, ReasonBannedWord},
		{"three links", "http://a.example http://b.example http://c.example", true, ReasonTooManyLinks},
		{"ten repeats", "so good" + strings.Repeat("!", 10), false, ""},
		{"eleven repeats", "so good" + strings.Repeat("!", 11), true, ReasonRepeatedChars},
		{"repeated kana", "うま" + strings.Repeat("ー", 12), true, ReasonRepeatedChars},
		{"newlines do not count", strings.Repeat("\n", 20) + "ok", false, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := Evaluate(tc.text)
			if v.IsSpam != tc.spam || v.Reason != tc.reason {
				t.Fatalf("Evaluate(%q) = %+v; want spam=%v reason=%q", tc.text, v, tc.spam, tc.reason)
			}
		})
	}
}

func TestEvaluate_BannedWordWinsOverLinks(t *testing.T) {
	v := Evaluate("buy now https://a.example https://b.example https://c.example")
	if v.Reason != ReasonBannedWord {
		t.Fatalf("expected banned word to win, got %+v", v)
	}
}

type fakeIndex struct {
	entries map[string]*domain.ReportIndexEntry
	err     error
	calls   int
}

func (f *fakeIndex) LookupReport(_ context.Context, userID, key string) (*domain.ReportIndexEntry, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.entries[userID+"|"+key], nil
}

func TestCheckDuplicate(t *testing.T) {
	ctx := context.Background()
	idx := &fakeIndex{entries: map[string]*domain.ReportIndexEntry{
		"u1|share:1": {UserID: "u1", TargetGroupKey: "share:1", ReportID: "r1"},
		"u1|share:2": {UserID: "u1", TargetGroupKey: "share:2"},
	}}

	if err := CheckDuplicate(ctx, idx, "u1", "share:1"); !errors.Is(err, ErrAlreadyReported) {
		t.Fatalf("expected ErrAlreadyReported, got %v", err)
	}
	if err := CheckDuplicate(ctx, idx, "u1", "share:2"); err != nil {
		t.Fatalf("entry without report id should not block: %v", err)
	}
	if err := CheckDuplicate(ctx, idx, "u2", "share:1"); err != nil {
		t.Fatalf("other reporter should not be blocked: %v", err)
	}
	if idx.calls != 3 {
		t.Fatalf("expected one lookup per check, got %d", idx.calls)
	}

	boom := errors.New("boom")
	if err := CheckDuplicate(ctx, &fakeIndex{err: boom}, "u1", "k"); !errors.Is(err, boom) {
		t.Fatalf("expected lookup error to propagate, got %v", err)
	}
}
