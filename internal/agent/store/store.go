package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"punchclock.service/internal/core/model"
)

var (
	ErrNotFound      = errors.New("punch not found")
	ErrQuotaExceeded = errors.New("local punch store is full")
	ErrDuplicate     = errors.New("punch already stored")
)

// punchRow is the on-disk shape of a queued punch. Seq keeps capture order
// for punches that share a timestamp.
type punchRow struct {
	Seq        int64     `gorm:"primaryKey;autoIncrement"`
	ID         string    `gorm:"uniqueIndex;not null"`
	EmployeeID string    `gorm:"index:idx_employee_ts;not null"`
	Type       string    `gorm:"not null"`
	Timestamp  time.Time `gorm:"index:idx_employee_ts;index;not null"`
	Synced     bool      `gorm:"index;not null;default:false"`
	SyncedAt   *time.Time
	Attempts   int `gorm:"not null;default:0"`
	LastError  string
	CreatedAt  time.Time
}

func (punchRow) TableName() string { return "punches" }

func (r punchRow) toModel() model.Punch {
	return model.Punch{
		ID:         r.ID,
		EmployeeID: r.EmployeeID,
		Type:       model.PunchType(r.Type),
		Timestamp:  r.Timestamp.UTC(),
		Synced:     r.Synced,
		SyncedAt:   r.SyncedAt,
		Attempts:   r.Attempts,
		LastError:  r.LastError,
		CreatedAt:  r.CreatedAt,
	}
}

// leaseRow guards sync passes when more than one agent process opens the same file.
type leaseRow struct {
	Name      string `gorm:"primaryKey"`
	Owner     string `gorm:"not null"`
	ExpiresAt time.Time
}

func (leaseRow) TableName() string { return "sync_leases" }

const syncLease = "sync"

// Options tune the retention policy and the quota of the store.
type Options struct {
	// MaxPending caps the number of unsynced punches. Zero means no cap.
	MaxPending int
	// RetainSynced keeps synced punches for audit instead of deleting them.
	RetainSynced bool
}

// Store is the durable offline punch queue of the agent.
type Store struct {
	db   *gorm.DB
	opts Options
	now  func() time.Time
}

// Open opens (or creates) the SQLite database at path and migrates the schema.
func Open(path string, opts Options) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=5000&_journal_mode=WAL"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	if err := db.AutoMigrate(&punchRow{}, &leaseRow{}); err != nil {
		return nil, fmt.Errorf("migrate local store: %w", err)
	}
	return &Store{db: db, opts: opts, now: time.Now}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Append queues p as unsynced. Missing ID and CreatedAt are filled in on p.
func (s *Store) Append(ctx context.Context, p *model.Punch) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now().UTC()
	}
	p.Synced = false
	p.SyncedAt = nil

	row := punchRow{
		ID:         p.ID,
		EmployeeID: p.EmployeeID,
		Type:       string(p.Type),
		Timestamp:  p.Timestamp.UTC(),
		CreatedAt:  p.CreatedAt,
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if s.opts.MaxPending > 0 {
			var pending int64
			if err := tx.Model(&punchRow{}).Where("synced = ?", false).Count(&pending).Error; err != nil {
				return classify("count pending punches", err)
			}
			if pending >= int64(s.opts.MaxPending) {
				return fmt.Errorf("%w: %d pending punches", ErrQuotaExceeded, pending)
			}
		}
		if err := tx.Create(&row).Error; err != nil {
			return classify("append punch "+p.ID, err)
		}
		return nil
	})
}

// ListUnsynced returns every punch not yet acknowledged by the server, oldest first.
func (s *Store) ListUnsynced(ctx context.Context) ([]model.Punch, error) {
	var rows []punchRow
	err := s.db.WithContext(ctx).
		Where("synced = ?", false).
		Order("timestamp ASC").Order("seq ASC").
		Find(&rows).Error
	if err != nil {
		return nil, classify("list unsynced punches", err)
	}
	return toModels(rows), nil
}

// MarkSynced flags the punch as acknowledged, or deletes it when synced
// punches are not retained. Marking an already synced punch is a no-op.
func (s *Store) MarkSynced(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row punchRow
		err := tx.Where("id = ?", id).Take(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if err != nil {
			return classify("load punch "+id, err)
		}
		if row.Synced {
			return nil
		}

		if !s.opts.RetainSynced {
			return classify("delete synced punch "+id, tx.Delete(&row).Error)
		}

		now := s.now().UTC()
		err = tx.Model(&row).Updates(map[string]any{
			"synced":     true,
			"synced_at":  now,
			"last_error": "",
		}).Error
		return classify("mark punch synced "+id, err)
	})
}

// RecordFailure bumps the attempt counter of a punch and keeps the last cause.
func (s *Store) RecordFailure(ctx context.Context, id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	res := s.db.WithContext(ctx).Model(&punchRow{}).
		Where("id = ? AND synced = ?", id, false).
		Updates(map[string]any{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": msg,
		})
	if res.Error != nil {
		return classify("record failure for "+id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Get loads a single punch by id.
func (s *Store) Get(ctx context.Context, id string) (*model.Punch, error) {
	var row punchRow
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, classify("get punch "+id, err)
	}
	p := row.toModel()
	return &p, nil
}

// PendingCount returns the number of unsynced punches.
func (s *Store) PendingCount(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&punchRow{}).Where("synced = ?", false).Count(&n).Error
	return n, classify("count pending punches", err)
}

// ListAll returns every stored punch in capture order.
func (s *Store) ListAll(ctx context.Context) ([]model.Punch, error) {
	var rows []punchRow
	if err := s.db.WithContext(ctx).Order("timestamp ASC").Order("seq ASC").Find(&rows).Error; err != nil {
		return nil, classify("list punches", err)
	}
	return toModels(rows), nil
}

// ListForEmployeeDay returns the punches of an employee within [from, to).
func (s *Store) ListForEmployeeDay(ctx context.Context, employeeID string, from, to time.Time) ([]model.Punch, error) {
	var rows []punchRow
	err := s.db.WithContext(ctx).
		Where("employee_id = ? AND timestamp >= ? AND timestamp < ?", employeeID, from.UTC(), to.UTC()).
		Order("timestamp ASC").Order("seq ASC").
		Find(&rows).Error
	if err != nil {
		return nil, classify("list punches of "+employeeID, err)
	}
	return toModels(rows), nil
}

// PurgeSynced deletes synced punches acknowledged before the cutoff.
func (s *Store) PurgeSynced(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("synced = ? AND synced_at < ?", true, before.UTC()).
		Delete(&punchRow{})
	if res.Error != nil {
		return 0, classify("purge synced punches", res.Error)
	}
	return res.RowsAffected, nil
}

// AcquireLease takes or renews the sync lease for owner. It returns false
// when another owner holds an unexpired lease.
func (s *Store) AcquireLease(ctx context.Context, owner string, ttl time.Duration) (bool, error) {
	now := s.now().UTC()
	acquired := false

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&leaseRow{}).
			Where("name = ? AND (owner = ? OR expires_at < ?)", syncLease, owner, now).
			Updates(map[string]any{"owner": owner, "expires_at": now.Add(ttl)})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			acquired = true
			return nil
		}

		res = tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&leaseRow{Name: syncLease, Owner: owner, ExpiresAt: now.Add(ttl)})
		if res.Error != nil {
			return res.Error
		}
		acquired = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, classify("acquire sync lease", err)
	}
	return acquired, nil
}

// ReleaseLease drops the lease if owner still holds it.
func (s *Store) ReleaseLease(ctx context.Context, owner string) error {
	err := s.db.WithContext(ctx).
		Where("name = ? AND owner = ?", syncLease, owner).
		Delete(&leaseRow{}).Error
	return classify("release sync lease", err)
}

func toModels(rows []punchRow) []model.Punch {
	punches := make([]model.Punch, 0, len(rows))
	for _, r := range rows {
		punches = append(punches, r.toModel())
	}
	return punches
}

// classify maps SQLite failures onto the store's sentinel errors.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrFull:
			return fmt.Errorf("%s: %w: %v", op, ErrQuotaExceeded, err)
		case sqlite3.ErrConstraint:
			if sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
				return fmt.Errorf("%s: %w", op, ErrDuplicate)
			}
		}
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%s: %w", op, ErrDuplicate)
	}
	return fmt.Errorf("%s: %w", op, err)
}
