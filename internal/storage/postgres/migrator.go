package postgres

import (
	"cmp"
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	migrationsDir = "sql/migrations"

	// Ключ pg_advisory_lock, общий для всех реплик сервиса и cmd/migrate.
	migrationLockID  = int64(0x73746f7265)
	migrationLockTTL = 30 * time.Second

	createVersionTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version    BIGINT PRIMARY KEY,
    name       TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
)

//go:embed sql/migrations/*.sql
var migrationsFS embed.FS

// 0003_outbox_lease.up.sql -> версия, имя, направление.
var migrationFileName = regexp.MustCompile(`^(\d+)_(\w+)\.(up|down)\.sql$`)

type migration struct {
	Version int64
	Name    string
	UpSQL   string
	DownSQL string
}

func (m migration) label() string {
	return fmt.Sprintf("%04d_%s", m.Version, m.Name)
}

// MigrationState описывает состояние схемы.
type MigrationState struct {
	Version int64
	Applied int
	Pending []string
}

// migrationSet упорядочен по возрастанию версии.
type migrationSet []migration

// planUp выбирает до steps неприменённых миграций; steps <= 0 означает все.
func (set migrationSet) planUp(applied map[int64]bool, steps int) []migration {
	var plan []migration
	for _, m := range set {
		if applied[m.Version] {
			continue
		}
		if steps > 0 && len(plan) == steps {
			break
		}
		plan = append(plan, m)
	}
	return plan
}

// planDown выбирает steps последних применённых миграций, новые первыми.
func (set migrationSet) planDown(applied map[int64]bool, steps int) ([]migration, error) {
	versions := make([]int64, 0, len(applied))
	for v := range applied {
		versions = append(versions, v)
	}
	slices.Sort(versions)
	slices.Reverse(versions)
	if len(versions) > steps {
		versions = versions[:steps]
	}

	plan := make([]migration, 0, len(versions))
	for _, v := range versions {
		i := slices.IndexFunc(set, func(m migration) bool { return m.Version == v })
		if i < 0 {
			return nil, fmt.Errorf("schema has version %d with no migration files to roll it back", v)
		}
		plan = append(plan, set[i])
	}
	return plan, nil
}

func (set migrationSet) state(applied map[int64]bool) MigrationState {
	state := MigrationState{Applied: len(applied)}
	for _, m := range set {
		if !applied[m.Version] {
			state.Pending = append(state.Pending, m.label())
			continue
		}
		state.Version = max(state.Version, m.Version)
	}
	return state
}

// EnsureSchema применяет все up-миграции.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.MigrateUp(ctx, 0)
}

// MigrateUp применяет up-миграции; steps=0 означает "все доступные".
func (s *Store) MigrateUp(ctx context.Context, steps int) error {
	return s.migrate(ctx, func(sess *migrationSession) error {
		for _, m := range sess.set.planUp(sess.applied, steps) {
			if err := sess.apply(ctx, m, true); err != nil {
				return err
			}
		}
		return nil
	})
}

// MigrateDown откатывает последние steps миграций; steps<=0 откатывает одну.
func (s *Store) MigrateDown(ctx context.Context, steps int) error {
	return s.migrate(ctx, func(sess *migrationSession) error {
		plan, err := sess.set.planDown(sess.applied, max(steps, 1))
		if err != nil {
			return err
		}
		for _, m := range plan {
			if err := sess.apply(ctx, m, false); err != nil {
				return err
			}
		}
		return nil
	})
}

// MigrationStatus возвращает текущую версию схемы и список непримененных миграций.
func (s *Store) MigrationStatus(ctx context.Context) (MigrationState, error) {
	var state MigrationState
	err := s.migrate(ctx, func(sess *migrationSession) error {
		state = sess.set.state(sess.applied)
		return nil
	})
	return state, err
}

// migrationSession держит соединение с захваченным advisory lock.
type migrationSession struct {
	conn    *sql.Conn
	set     migrationSet
	applied map[int64]bool
	logger  *log.Entry
}

func (sess *migrationSession) apply(ctx context.Context, m migration, up bool) error {
	body, record, args, verb := m.UpSQL, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, []any{m.Version, m.Name}, "apply"
	if !up {
		body, record, args, verb = m.DownSQL, `DELETE FROM schema_migrations WHERE version = $1`, []any{m.Version}, "roll back"
	}

	tx, err := sess.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s %s: begin: %w", verb, m.label(), err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, body); err != nil {
		return fmt.Errorf("%s %s: %w", verb, m.label(), err)
	}
	if _, err := tx.ExecContext(ctx, record, args...); err != nil {
		return fmt.Errorf("%s %s: record version: %w", verb, m.label(), err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s %s: commit: %w", verb, m.label(), err)
	}

	if up {
		sess.applied[m.Version] = true
	} else {
		delete(sess.applied, m.Version)
	}
	sess.logger.WithFields(log.Fields{"migration": m.label(), "up": up}).Info("schema migrated")
	return nil
}

// migrate выполняет fn под advisory lock, чтобы реплики не накатывали схему одновременно.
func (s *Store) migrate(ctx context.Context, fn func(*migrationSession) error) error {
	if s == nil || s.db == nil {
		return errStoreClosed
	}
	set, err := readMigrations(migrationsFS)
	if err != nil {
		return err
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	lockCtx, cancel := context.WithTimeout(ctx, migrationLockTTL)
	defer cancel()
	if _, err := conn.ExecContext(lockCtx, `SELECT pg_advisory_lock($1)`, migrationLockID); err != nil {
		return fmt.Errorf("lock schema: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, migrationLockID)
	}()

	if _, err := conn.ExecContext(ctx, createVersionTable); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	applied, err := appliedVersions(ctx, conn)
	if err != nil {
		return err
	}

	logger := s.logger
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return fn(&migrationSession{
		conn:    conn,
		set:     set,
		applied: applied,
		logger:  logger.WithField("component", "postgres-migrator"),
	})
}

func appliedVersions(ctx context.Context, conn *sql.Conn) (map[int64]bool, error) {
	rows, err := conn.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int64]bool)
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan schema version: %w", err)
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

// readMigrations собирает пары up/down из каталога sql/migrations.
func readMigrations(fsys fs.FS) (migrationSet, error) {
	entries, err := fs.ReadDir(fsys, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", migrationsDir, err)
	}

	byVersion := make(map[int64]*migration)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		parts := migrationFileName.FindStringSubmatch(entry.Name())
		if parts == nil {
			return nil, fmt.Errorf("unexpected file %s in %s", entry.Name(), migrationsDir)
		}
		version, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("version of %s: %w", entry.Name(), err)
		}
		raw, err := fs.ReadFile(fsys, path.Join(migrationsDir, entry.Name()))
		if err != nil {
			return nil, err
		}
		body := strings.TrimSpace(string(raw))
		if body == "" {
			return nil, fmt.Errorf("%s is empty", entry.Name())
		}

		m := byVersion[version]
		switch {
		case m == nil:
			m = &migration{Version: version, Name: parts[2]}
			byVersion[version] = m
		case m.Name != parts[2]:
			return nil, fmt.Errorf("version %d is named both %s and %s", version, m.Name, parts[2])
		}
		target := &m.DownSQL
		if parts[3] == "up" {
			target = &m.UpSQL
		}
		if *target != "" {
			return nil, fmt.Errorf("version %d has two %s files", version, parts[3])
		}
		*target = body
	}
	if len(byVersion) == 0 {
		return nil, errors.New("no migrations found")
	}

	set := make(migrationSet, 0, len(byVersion))
	for _, m := range byVersion {
		if m.UpSQL == "" || m.DownSQL == "" {
			return nil, fmt.Errorf("%s needs both up and down files", m.label())
		}
		set = append(set, *m)
	}
	slices.SortFunc(set, func(a, b migration) int { return cmp.Compare(a.Version, b.Version) })
	return set, nil
}
