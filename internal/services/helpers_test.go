package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-meal-backend/internal/auth"
	"github.com/tbourn/go-meal-backend/internal/domain"
	"github.com/tbourn/go-meal-backend/internal/repo"
)

func newStore(t *testing.T) *repo.Store {
	t.Helper()
	// Unique DB per test to avoid schema leaking across tests.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return repo.NewStore(db)
}

func user(uid string) *auth.Identity { return &auth.Identity{UID: uid} }

func guest(uid string) *auth.Identity { return &auth.Identity{UID: uid, Anonymous: true} }

var fixedNow = time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

// fakeLimiter records calls and returns err when set.
type fakeLimiter struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (l *fakeLimiter) CheckAndRecord(_ context.Context, userID, action string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, userID+":"+action)
	return l.err
}

func seedProfile(t *testing.T, s *repo.Store, uid, nick string) {
	t.Helper()
	st := &domain.UserSettings{UserID: uid, SchemaVersion: domain.SettingsSchemaVersion, Profile: domain.Profile{Nickname: nick, Icon: "🍙"}}
	if err := s.SaveSettings(context.Background(), st); err != nil {
		t.Fatalf("seed profile: %v", err)
	}
}
