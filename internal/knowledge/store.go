package knowledge

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/bomflow/internal/domain"

	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

// Store — Knowledge Store поверх SQLite.
type Store struct {
	db *sql.DB
}

// Open открывает (и при необходимости создаёт) базу по пути.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: sqlite path is required", ErrInvalid)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return initStore(db)
}

// OpenInMemory открывает изолированную базу в памяти.
func OpenInMemory() (*Store, error) {
	dsn := fmt.Sprintf("file:knowledge-%s?mode=memory&cache=shared", uuid.NewString())
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	return initStore(db)
}

func initStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close закрывает базу.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA busy_timeout = 5000;`,
		`CREATE TABLE IF NOT EXISTS banned_parts (
			mpn TEXT PRIMARY KEY COLLATE NOCASE,
			reason TEXT NOT NULL DEFAULT '',
			banned_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS part_alternates (
			mpn TEXT NOT NULL COLLATE NOCASE,
			alternate_mpn TEXT NOT NULL COLLATE NOCASE,
			created_at TEXT NOT NULL,
			PRIMARY KEY (mpn, alternate_mpn)
		);`,
		`CREATE TABLE IF NOT EXISTS parts (
			mpn TEXT PRIMARY KEY COLLATE NOCASE,
			times_used INTEGER NOT NULL DEFAULT 0,
			failure_count INTEGER NOT NULL DEFAULT 0,
			notes TEXT NOT NULL DEFAULT '',
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS suppliers (
			id TEXT PRIMARY KEY COLLATE NOCASE,
			name TEXT NOT NULL,
			trust_level TEXT NOT NULL DEFAULT 'medium',
			on_time_rate REAL NOT NULL DEFAULT 0,
			quality_rate REAL NOT NULL DEFAULT 0,
			notes TEXT NOT NULL DEFAULT '',
			updated_at TEXT NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate knowledge: %w", err)
		}
	}
	return nil
}

// --- Parts ---

// IsPartBanned проверяет запрет детали и возвращает причину.
func (s *Store) IsPartBanned(ctx context.Context, mpn string) (bool, string, error) {
	var reason string
	err := s.db.QueryRowContext(ctx, `SELECT reason FROM banned_parts WHERE mpn = ?`, mpn).Scan(&reason)
	if errors.Is(err, sql.ErrNoRows) {
		return false, "", nil
	}
	if err != nil {
		return false, "", fmt.Errorf("query banned part: %w", err)
	}
	return true, reason, nil
}

// BanPart запрещает деталь. Повторный вызов обновляет причину.
func (s *Store) BanPart(ctx context.Context, mpn, reason string) error {
	mpn = strings.TrimSpace(mpn)
	if mpn == "" {
		return fmt.Errorf("%w: mpn is required", ErrInvalid)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO banned_parts(mpn, reason, banned_at) VALUES (?, ?, ?)
		ON CONFLICT(mpn) DO UPDATE SET reason = excluded.reason, banned_at = excluded.banned_at
	`, mpn, strings.TrimSpace(reason), ts(time.Now()))
	if err != nil {
		return fmt.Errorf("ban part: %w", err)
	}
	return nil
}

// UnbanPart снимает запрет. ErrNotFound, если деталь не была запрещена.
func (s *Store) UnbanPart(ctx context.Context, mpn string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM banned_parts WHERE mpn = ?`, mpn)
	if err != nil {
		return fmt.Errorf("unban part: %w", err)
	}
	return translateNoRows(res)
}

// BannedPart — запрещённая деталь.
type BannedPart struct {
	MPN      string    `json:"mpn"`
	Reason   string    `json:"reason"`
	BannedAt time.Time `json:"banned_at"`
}

// ListBanned возвращает запрещённые детали по MPN.
func (s *Store) ListBanned(ctx context.Context) ([]BannedPart, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT mpn, reason, banned_at FROM banned_parts ORDER BY mpn`)
	if err != nil {
		return nil, fmt.Errorf("list banned parts: %w", err)
	}
	defer rows.Close()

	out := []BannedPart{}
	for rows.Next() {
		var b BannedPart
		var at string
		if err := rows.Scan(&b.MPN, &b.Reason, &at); err != nil {
			return nil, fmt.Errorf("scan banned part: %w", err)
		}
		b.BannedAt = parseTS(at)
		out = append(out, b)
	}
	return out, rows.Err()
}

// ApprovedAlternates возвращает одобренные замены для MPN.
func (s *Store) ApprovedAlternates(ctx context.Context, mpn string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT alternate_mpn FROM part_alternates WHERE mpn = ? ORDER BY created_at, alternate_mpn
	`, mpn)
	if err != nil {
		return nil, fmt.Errorf("query alternates: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var alt string
		if err := rows.Scan(&alt); err != nil {
			return nil, fmt.Errorf("scan alternate: %w", err)
		}
		out = append(out, alt)
	}
	return out, rows.Err()
}

// AddAlternate одобряет замену alternate для mpn.
func (s *Store) AddAlternate(ctx context.Context, mpn, alternate string) error {
	mpn, alternate = strings.TrimSpace(mpn), strings.TrimSpace(alternate)
	if mpn == "" || alternate == "" {
		return fmt.Errorf("%w: mpn and alternate are required", ErrInvalid)
	}
	if strings.EqualFold(mpn, alternate) {
		return fmt.Errorf("%w: part cannot be its own alternate", ErrInvalid)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO part_alternates(mpn, alternate_mpn, created_at) VALUES (?, ?, ?)
		ON CONFLICT(mpn, alternate_mpn) DO NOTHING
	`, mpn, alternate, ts(time.Now()))
	if err != nil {
		return fmt.Errorf("add alternate: %w", err)
	}
	return nil
}

// PartKnowledge возвращает историю детали или nil, если её нет.
func (s *Store) PartKnowledge(ctx context.Context, mpn string) (*domain.PartKnowledge, error) {
	var pk domain.PartKnowledge
	err := s.db.QueryRowContext(ctx, `
		SELECT mpn, times_used, failure_count, notes FROM parts WHERE mpn = ?
	`, mpn).Scan(&pk.MPN, &pk.TimesUsed, &pk.FailureCount, &pk.Notes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query part knowledge: %w", err)
	}
	return &pk, nil
}

// RecordPartUsage увеличивает счётчик использования; failed также
// увеличивает счётчик отказов, note заменяет заметку, если не пуста.
func (s *Store) RecordPartUsage(ctx context.Context, mpn string, failed bool, note string) error {
	mpn = strings.TrimSpace(mpn)
	if mpn == "" {
		return fmt.Errorf("%w: mpn is required", ErrInvalid)
	}
	failures := 0
	if failed {
		failures = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO parts(mpn, times_used, failure_count, notes, updated_at) VALUES (?, 1, ?, ?, ?)
		ON CONFLICT(mpn) DO UPDATE SET
			times_used = parts.times_used + 1,
			failure_count = parts.failure_count + excluded.failure_count,
			notes = CASE WHEN excluded.notes = '' THEN parts.notes ELSE excluded.notes END,
			updated_at = excluded.updated_at
	`, mpn, failures, strings.TrimSpace(note), ts(time.Now()))
	if err != nil {
		return fmt.Errorf("record part usage: %w", err)
	}
	return nil
}

// RecordProject учитывает использование деталей, одобренных к закупке.
func (s *Store) RecordProject(ctx context.Context, p *domain.Project) error {
	if p == nil || p.Status != domain.ProjectStatusComplete {
		return nil
	}
	seen := make(map[string]bool)
	for _, it := range p.LineItems {
		if it.Status != domain.LineItemPendingPurchase {
			continue
		}
		mpn := it.SelectedMPN
		if mpn == "" {
			mpn = it.MPN
		}
		if seen[mpn] {
			continue
		}
		seen[mpn] = true
		if err := s.RecordPartUsage(ctx, mpn, false, ""); err != nil {
			return err
		}
	}
	return nil
}

// --- Suppliers ---

// Supplier возвращает поставщика или nil, если он неизвестен.
func (s *Store) Supplier(ctx context.Context, id string) (*domain.Supplier, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, trust_level, on_time_rate, quality_rate, notes FROM suppliers WHERE id = ?
	`, id)
	sup, err := scanSupplier(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query supplier: %w", err)
	}
	return sup, nil
}

// ListSuppliers возвращает всех поставщиков по ID.
func (s *Store) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, trust_level, on_time_rate, quality_rate, notes FROM suppliers ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list suppliers: %w", err)
	}
	defer rows.Close()

	out := []domain.Supplier{}
	for rows.Next() {
		sup, err := scanSupplier(rows)
		if err != nil {
			return nil, fmt.Errorf("scan supplier: %w", err)
		}
		out = append(out, *sup)
	}
	return out, rows.Err()
}

// UpsertSupplier создаёт или обновляет поставщика.
func (s *Store) UpsertSupplier(ctx context.Context, sup domain.Supplier) error {
	if err := validateSupplier(&sup); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO suppliers(id, name, trust_level, on_time_rate, quality_rate, notes, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			trust_level = excluded.trust_level,
			on_time_rate = excluded.on_time_rate,
			quality_rate = excluded.quality_rate,
			notes = excluded.notes,
			updated_at = excluded.updated_at
	`, sup.ID, sup.Name, string(sup.TrustLevel), sup.OnTimeRate, sup.QualityRate, sup.Notes, ts(time.Now()))
	if err != nil {
		return fmt.Errorf("upsert supplier: %w", err)
	}
	return nil
}

func validateSupplier(sup *domain.Supplier) error {
	sup.ID = strings.ToLower(strings.TrimSpace(sup.ID))
	if sup.ID == "" {
		return fmt.Errorf("%w: supplier id is required", ErrInvalid)
	}
	if sup.Name == "" {
		sup.Name = sup.ID
	}
	sup.TrustLevel = domain.TrustLevel(strings.ToLower(strings.TrimSpace(string(sup.TrustLevel))))
	if sup.TrustLevel == "" {
		sup.TrustLevel = domain.TrustMedium
	}
	if !sup.TrustLevel.IsValid() {
		return fmt.Errorf("%w: trust level %q", ErrInvalid, sup.TrustLevel)
	}
	if sup.OnTimeRate < 0 || sup.OnTimeRate > 1 || sup.QualityRate < 0 || sup.QualityRate > 1 {
		return fmt.Errorf("%w: rates must be within [0, 1]", ErrInvalid)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSupplier(row scanner) (*domain.Supplier, error) {
	var sup domain.Supplier
	var trust string
	if err := row.Scan(&sup.ID, &sup.Name, &trust, &sup.OnTimeRate, &sup.QualityRate, &sup.Notes); err != nil {
		return nil, err
	}
	sup.TrustLevel = domain.ParseTrustLevel(trust)
	return &sup, nil
}

func translateNoRows(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTS(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
