package repo

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tbourn/go-translingo-backend/internal/domain"
)

func TestOpenSQLite_MissingDirectory(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "missing", "app.db")
	db, err := OpenSQLite(bad)
	if db != nil || !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("OpenSQLite(%q) = %v, %v; want ErrNotExist", bad, db, err)
	}
}

func TestSQLiteDSN(t *testing.T) {
	got := sqliteDSN("a.db")
	if !strings.HasPrefix(got, "a.db?_pragma=") || strings.Count(got, "_pragma=") != len(pragmas) {
		t.Fatalf("dsn = %q", got)
	}
	if got := sqliteDSN("file:x.db?mode=rwc"); !strings.HasPrefix(got, "file:x.db?mode=rwc&_pragma=") {
		t.Fatalf("existing query not kept: %q", got)
	}
}

func TestOpenSQLite_PragmasOnEveryConnection(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "translingo.db"), Options{Silent: true, NoTracing: true})
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	sqlDB, _ := db.DB()
	t.Cleanup(func() { _ = sqlDB.Close() })

	if n := sqlDB.Stats().MaxOpenConnections; n != maxConns {
		t.Fatalf("MaxOpenConnections = %d", n)
	}

	// Hold several connections at once so the pool has to open new ones.
	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tx := db.Begin()
			defer tx.Rollback()
			var mode string
			var busy int
			if err := tx.Raw("PRAGMA journal_mode").Row().Scan(&mode); err != nil {
				errs <- err
				return
			}
			if err := tx.Raw("PRAGMA busy_timeout").Row().Scan(&busy); err != nil {
				errs <- err
				return
			}
			if strings.ToLower(mode) != "wal" || busy != 5000 {
				errs <- errors.New("pragma missing: " + mode)
			}
			time.Sleep(20 * time.Millisecond)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}

func TestAutoMigrate(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "m.db"), Options{Silent: true})
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	sqlDB, _ := db.DB()
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	for _, tbl := range []any{&domain.HistoryRecord{}, &domain.Preference{}, &domain.Idempotency{}} {
		if !db.Migrator().HasTable(tbl) {
			t.Errorf("no table for %T", tbl)
		}
	}
	// Idempotent.
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("second AutoMigrate: %v", err)
	}
	if err := db.Create(domain.NewHistoryRecord("en", "es", "hello", "hola", time.Now())).Error; err != nil {
		t.Fatalf("insert: %v", err)
	}
}
