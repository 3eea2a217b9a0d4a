// Package prefs is a durable key/value preference store over the
// preferences table, with change notification.
//
// Writes go straight to the database. After each committed write every
// watcher receives a Change on its own buffered channel. A watcher that falls
// behind loses its oldest notifications rather than blocking the writer, so
// consumers should treat a Change as a hint and re-read with Get.
package prefs

import (
	"context"
	"errors"
	"sync"

	"gorm.io/gorm"

	"github.com/tbourn/go-translingo-backend/internal/repo"
)

// Keys of the language pair slots.
const (
	KeySourceLanguage = "source_language_code"
	KeyTargetLanguage = "target_language_code"
)

// watchBuffer is the per-watcher notification backlog.
const watchBuffer = 16

// Change describes one committed write. Present is false for deletions.
type Change struct {
	Key     string
	Value   string
	Present bool
}

// Store is safe for concurrent use.
type Store struct {
	DB *gorm.DB

	mu       sync.Mutex
	watchers map[int]chan Change
	nextID   int
}

// New returns a store over db.
func New(db *gorm.DB) *Store {
	return &Store{DB: db, watchers: make(map[int]chan Change)}
}

// Get returns the value stored under key. ok is false when the key is unset.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	p, err := repo.GetPreference(ctx, s.DB, key)
	if errors.Is(err, repo.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return p.Value, true, nil
}

// Set writes value under key and notifies watchers.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := repo.SetPreference(ctx, s.DB, key, value); err != nil {
		return err
	}
	s.publish(Change{Key: key, Value: value, Present: true})
	return nil
}

// Delete unsets key and notifies watchers.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := repo.DeletePreference(ctx, s.DB, key); err != nil {
		return err
	}
	s.publish(Change{Key: key})
	return nil
}

// Watch registers a watcher. The returned func unregisters it and closes the
// channel; calling it more than once is safe.
func (s *Store) Watch() (<-chan Change, func()) {
	ch := make(chan Change, watchBuffer)

	s.mu.Lock()
	if s.watchers == nil {
		s.watchers = make(map[int]chan Change)
	}
	id := s.nextID
	s.nextID++
	s.watchers[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.watchers, id)
			s.mu.Unlock()
			close(ch)
		})
	}
}

func (s *Store) publish(c Change) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.watchers {
		for {
			select {
			case ch <- c:
			default:
				// Full: drop the oldest and retry.
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
}
