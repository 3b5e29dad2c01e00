// Package store owns the canonical collections: users, departments, feedback
// requests and feedback. Every write goes through Store, runs in a single
// transaction and bumps the store version.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/go-playground/validator"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"peerpulse-backend/internal/models"
	"peerpulse-backend/internal/utils"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalid           = errors.New("invalid input")
	ErrDuplicateEmail    = errors.New("user with this email already exists")
	ErrNoPeers           = errors.New("at least one peer must be selected")
	ErrSelfRequest       = errors.New("cannot request feedback from yourself")
	ErrDuplicatePeer     = errors.New("peer selected more than once")
	ErrRequestNotPending = errors.New("feedback request is not pending")
	ErrReviewerMismatch  = errors.New("reviewer does not match the request's anonymity")
)

// Open connects to the database named by dsn.
// SQLite DSNs start with "file:", anything else is treated as PostgreSQL.
func Open(dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{TranslateError: true, Logger: logger.Default.LogMode(logger.Silent)}

	if strings.HasPrefix(dsn, "file:") {
		db, err := gorm.Open(sqlite.Open(dsn), cfg)
		if err != nil {
			return nil, err
		}
		// A single connection keeps the in-memory database alive and
		// avoids shared-cache table locks
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
		return db, nil
	}

	return gorm.Open(postgres.Open(dsn), cfg)
}

type Store struct {
	db       *gorm.DB
	validate *validator.Validate

	// mu serialises writes and snapshots
	mu      sync.Mutex
	version atomic.Uint64

	listenersMu sync.RWMutex
	listeners   []func(version uint64)
}

func New(db *gorm.DB) *Store {
	return &Store{db: db, validate: utils.NewValidator()}
}

// Migrate creates or updates the tables backing the store
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(
		&models.User{},
		&models.Department{},
		&models.FeedbackRequest{},
		&models.Feedback{},
	)
}

// DB exposes the connection for infrastructure sharing it, e.g. the session store
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Version increases by one after every successful write
func (s *Store) Version() uint64 {
	return s.version.Load()
}

// OnChange registers fn to be called with the new version after every write.
// Callbacks run after the write lock is released.
func (s *Store) OnChange(fn func(version uint64)) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// write runs fn in one transaction. Either every statement of fn is applied
// and the version moves forward, or nothing is.
func (s *Store) write(ctx context.Context, fn func(tx *gorm.DB) error) error {
	s.mu.Lock()
	err := s.db.WithContext(ctx).Transaction(fn)
	var version uint64
	if err == nil {
		version = s.version.Add(1)
	}
	s.mu.Unlock()

	if err != nil {
		return err
	}

	s.listenersMu.RLock()
	listeners := append([]func(uint64){}, s.listeners...)
	s.listenersMu.RUnlock()
	for _, fn := range listeners {
		fn(version)
	}
	return nil
}

func (s *Store) validateStruct(v interface{}) error {
	if err := s.validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return err
}

// Snapshot is a consistent copy of every collection at Version
type Snapshot struct {
	Version     uint64
	Users       []models.User
	Departments []models.Department
	Requests    []models.FeedbackRequest
	Feedback    []models.Feedback
}

// Snapshot reads all collections without interleaving with a write
func (s *Store) Snapshot(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{Version: s.version.Load()}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Order("id").Find(&snap.Users).Error; err != nil {
			return err
		}
		if err := tx.Order("name").Find(&snap.Departments).Error; err != nil {
			return err
		}
		if err := tx.Order("id").Find(&snap.Requests).Error; err != nil {
			return err
		}
		return tx.Order("id").Find(&snap.Feedback).Error
	})
	if err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// RequestByID indexes the snapshot's requests
func (snap *Snapshot) RequestByID() map[uint]*models.FeedbackRequest {
	index := make(map[uint]*models.FeedbackRequest, len(snap.Requests))
	for i := range snap.Requests {
		index[snap.Requests[i].ID] = &snap.Requests[i]
	}
	return index
}

// User finds a user in the snapshot
func (snap *Snapshot) User(id uint) (*models.User, bool) {
	for i := range snap.Users {
		if snap.Users[i].ID == id {
			return &snap.Users[i], true
		}
	}
	return nil, false
}

// DepartmentNames returns every department, including the ones only known
// through a user's department field
func (snap *Snapshot) DepartmentNames() []string {
	seen := make(map[string]bool)
	var names []string
	for _, d := range snap.Departments {
		if !seen[d.Name] {
			seen[d.Name] = true
			names = append(names, d.Name)
		}
	}
	for _, u := range snap.Users {
		if !seen[u.Department] {
			seen[u.Department] = true
			names = append(names, u.Department)
		}
	}
	return names
}
