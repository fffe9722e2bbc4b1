package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO required)

	"wsbind/pkg/contracts/domain"
)

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLite-backed store at the given path. Use
// ":memory:" for an ephemeral database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create db directory: %w", err)
		}
	}

	// modernc.org/sqlite takes pragmas as _pragma=name(value) parameters
	connStr := dbPath + "?_pragma=foreign_keys(1)"
	if dbPath != ":memory:" {
		connStr += "&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite supports one writer at a time; serialize access at the pool
	// level so concurrent engine operations queue instead of failing with
	// SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db, dbPath: dbPath}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}
	return store, nil
}

// initSchema creates tables if they don't exist
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS businesses (
		license_number TEXT PRIMARY KEY,
		business_name TEXT NOT NULL DEFAULT '',
		verification_status TEXT NOT NULL,
		max_workshop_bindings INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS bindings (
		workshop_code TEXT NOT NULL,
		business_license TEXT NOT NULL,
		workshop_display_name TEXT NOT NULL DEFAULT '',
		fingerprint_digest TEXT NOT NULL,
		license_key_hash TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		validation_failures INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		last_validated_at TEXT,
		PRIMARY KEY (workshop_code, business_license),
		FOREIGN KEY (business_license) REFERENCES businesses(license_number)
	);

	CREATE INDEX IF NOT EXISTS idx_bindings_workshop ON bindings(workshop_code);
	CREATE INDEX IF NOT EXISTS idx_bindings_business ON bindings(business_license);

	CREATE TABLE IF NOT EXISTS issued_tokens (
		token_hash TEXT PRIMARY KEY,
		workshop_code TEXT NOT NULL,
		business_license TEXT NOT NULL,
		hardware_hash TEXT NOT NULL,
		binding_type TEXT NOT NULL,
		issued_at TEXT NOT NULL,
		expires_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_issued_tokens_pair ON issued_tokens(workshop_code, business_license);

	CREATE TABLE IF NOT EXISTS revocations (
		token_hash TEXT PRIMARY KEY,
		revoked_at TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS audit_events (
		id TEXT PRIMARY KEY,
		workshop_code TEXT NOT NULL,
		business_license TEXT NOT NULL,
		action TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}'
	);

	CREATE INDEX IF NOT EXISTS idx_audit_events_workshop ON audit_events(workshop_code);
	CREATE INDEX IF NOT EXISTS idx_audit_events_business ON audit_events(business_license);
	`

	_, err := s.db.Exec(schema)
	return err
}

const timeLayout = time.RFC3339Nano

func encodeTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func decodeTime(raw string) time.Time {
	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Business returns the business record, or nil when absent
func (s *SQLiteStore) Business(ctx context.Context, licenseNumber string) (*domain.BusinessEntity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT license_number, business_name, verification_status, max_workshop_bindings, created_at, updated_at
		FROM businesses WHERE license_number = ?`, licenseNumber)

	var business domain.BusinessEntity
	var createdAt, updatedAt string
	err := row.Scan(&business.LicenseNumber, &business.BusinessName, &business.VerificationStatus,
		&business.MaxWorkshopBindings, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load business: %w", err)
	}
	business.CreatedAt = decodeTime(createdAt)
	business.UpdatedAt = decodeTime(updatedAt)
	return &business, nil
}

// PutBusiness inserts or replaces a business record
func (s *SQLiteStore) PutBusiness(ctx context.Context, business *domain.BusinessEntity) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO businesses (license_number, business_name, verification_status, max_workshop_bindings, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(license_number) DO UPDATE SET
			business_name = excluded.business_name,
			verification_status = excluded.verification_status,
			max_workshop_bindings = excluded.max_workshop_bindings,
			updated_at = excluded.updated_at`,
		business.LicenseNumber, business.BusinessName, business.VerificationStatus,
		business.MaxWorkshopBindings, encodeTime(business.CreatedAt), encodeTime(business.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to store business: %w", err)
	}
	return nil
}

const bindingColumns = `workshop_code, business_license, workshop_display_name, fingerprint_digest,
	license_key_hash, status, validation_failures, created_at, last_validated_at`

func scanBinding(row interface{ Scan(...any) error }) (*domain.WorkshopBinding, error) {
	var binding domain.WorkshopBinding
	var digestJSON, createdAt string
	var lastValidatedAt sql.NullString
	err := row.Scan(&binding.WorkshopCode, &binding.BusinessLicense, &binding.WorkshopDisplayName,
		&digestJSON, &binding.LicenseKeyHash, &binding.Status, &binding.ValidationFailures,
		&createdAt, &lastValidatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(digestJSON), &binding.FingerprintDigest); err != nil {
		return nil, fmt.Errorf("failed to decode fingerprint digest: %w", err)
	}
	binding.CreatedAt = decodeTime(createdAt)
	if lastValidatedAt.Valid {
		t := decodeTime(lastValidatedAt.String)
		binding.LastValidatedAt = &t
	}
	return &binding, nil
}

// Binding returns the binding for the pair, or nil when absent
func (s *SQLiteStore) Binding(ctx context.Context, workshopCode, businessLicense string) (*domain.WorkshopBinding, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+bindingColumns+` FROM bindings WHERE workshop_code = ? AND business_license = ?`,
		workshopCode, businessLicense)
	binding, err := scanBinding(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load binding: %w", err)
	}
	return binding, nil
}

// ActiveBindingForWorkshop returns the Active binding for the workshop code
// across all businesses, or nil when there is none
func (s *SQLiteStore) ActiveBindingForWorkshop(ctx context.Context, workshopCode string) (*domain.WorkshopBinding, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+bindingColumns+` FROM bindings WHERE workshop_code = ? AND status = ? LIMIT 1`,
		workshopCode, domain.BindingStatusActive)
	binding, err := scanBinding(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load active binding: %w", err)
	}
	return binding, nil
}

// ActiveBindingCount counts Active bindings owned by the business
func (s *SQLiteStore) ActiveBindingCount(ctx context.Context, businessLicense string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bindings WHERE business_license = ? AND status = ?`,
		businessLicense, domain.BindingStatusActive).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active bindings: %w", err)
	}
	return count, nil
}

// BindingsForBusiness returns the business's bindings sorted by workshop code
func (s *SQLiteStore) BindingsForBusiness(ctx context.Context, businessLicense string) ([]domain.WorkshopBinding, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+bindingColumns+` FROM bindings WHERE business_license = ? ORDER BY workshop_code`,
		businessLicense)
	if err != nil {
		return nil, fmt.Errorf("failed to list bindings: %w", err)
	}
	defer rows.Close()

	var bindings []domain.WorkshopBinding
	for rows.Next() {
		binding, err := scanBinding(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan binding: %w", err)
		}
		bindings = append(bindings, *binding)
	}
	return bindings, rows.Err()
}

// CreateBinding inserts a new binding row
func (s *SQLiteStore) CreateBinding(ctx context.Context, binding *domain.WorkshopBinding) error {
	digestJSON, err := json.Marshal(binding.FingerprintDigest)
	if err != nil {
		return fmt.Errorf("failed to encode fingerprint digest: %w", err)
	}

	var lastValidatedAt any
	if binding.LastValidatedAt != nil {
		lastValidatedAt = encodeTime(*binding.LastValidatedAt)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO bindings (workshop_code, business_license, workshop_display_name, fingerprint_digest,
			license_key_hash, status, validation_failures, created_at, last_validated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		binding.WorkshopCode, binding.BusinessLicense, binding.WorkshopDisplayName, string(digestJSON),
		binding.LicenseKeyHash, binding.Status, binding.ValidationFailures,
		encodeTime(binding.CreatedAt), lastValidatedAt)
	if err != nil {
		if existing, lookupErr := s.Binding(ctx, binding.WorkshopCode, binding.BusinessLicense); lookupErr == nil && existing != nil {
			return ErrDuplicateBinding
		}
		return fmt.Errorf("failed to create binding: %w", err)
	}
	return nil
}

// UpdateBinding replaces an existing binding row
func (s *SQLiteStore) UpdateBinding(ctx context.Context, binding *domain.WorkshopBinding) error {
	digestJSON, err := json.Marshal(binding.FingerprintDigest)
	if err != nil {
		return fmt.Errorf("failed to encode fingerprint digest: %w", err)
	}

	var lastValidatedAt any
	if binding.LastValidatedAt != nil {
		lastValidatedAt = encodeTime(*binding.LastValidatedAt)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE bindings SET workshop_display_name = ?, fingerprint_digest = ?, license_key_hash = ?,
			status = ?, validation_failures = ?, last_validated_at = ?
		WHERE workshop_code = ? AND business_license = ?`,
		binding.WorkshopDisplayName, string(digestJSON), binding.LicenseKeyHash,
		binding.Status, binding.ValidationFailures, lastValidatedAt,
		binding.WorkshopCode, binding.BusinessLicense)
	if err != nil {
		return fmt.Errorf("failed to update binding: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ErrBindingNotFound
	}
	return nil
}

// DeleteBinding removes the binding row for the pair
func (s *SQLiteStore) DeleteBinding(ctx context.Context, workshopCode, businessLicense string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM bindings WHERE workshop_code = ? AND business_license = ?`,
		workshopCode, businessLicense)
	if err != nil {
		return fmt.Errorf("failed to delete binding: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ErrBindingNotFound
	}
	return nil
}

// RecordIssuedToken adds a token to the issued-token index
func (s *SQLiteStore) RecordIssuedToken(ctx context.Context, issued domain.IssuedToken) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO issued_tokens (token_hash, workshop_code, business_license, hardware_hash, binding_type, issued_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		issued.TokenHash, issued.WorkshopCode, issued.BusinessLicense, issued.HardwareHash,
		issued.BindingType, encodeTime(issued.IssuedAt), encodeTime(issued.ExpiresAt))
	if err != nil {
		return fmt.Errorf("failed to record issued token: %w", err)
	}
	return nil
}

// IssuedToken returns the issued-token record, or nil when absent
func (s *SQLiteStore) IssuedToken(ctx context.Context, tokenHash string) (*domain.IssuedToken, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT token_hash, workshop_code, business_license, hardware_hash, binding_type, issued_at, expires_at
		FROM issued_tokens WHERE token_hash = ?`, tokenHash)

	var issued domain.IssuedToken
	var issuedAt, expiresAt string
	err := row.Scan(&issued.TokenHash, &issued.WorkshopCode, &issued.BusinessLicense,
		&issued.HardwareHash, &issued.BindingType, &issuedAt, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load issued token: %w", err)
	}
	issued.IssuedAt = decodeTime(issuedAt)
	issued.ExpiresAt = decodeTime(expiresAt)
	return &issued, nil
}

// IssuedTokenHashes lists every token hash issued for the pair
func (s *SQLiteStore) IssuedTokenHashes(ctx context.Context, workshopCode, businessLicense string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT token_hash FROM issued_tokens WHERE workshop_code = ? AND business_license = ? ORDER BY token_hash`,
		workshopCode, businessLicense)
	if err != nil {
		return nil, fmt.Errorf("failed to list issued tokens: %w", err)
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return nil, err
		}
		hashes = append(hashes, hash)
	}
	return hashes, rows.Err()
}

// AddRevocation appends to the revocation set; re-revoking is a no-op
func (s *SQLiteStore) AddRevocation(ctx context.Context, record domain.RevocationRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO revocations (token_hash, revoked_at, reason) VALUES (?, ?, ?)`,
		record.TokenHash, encodeTime(record.RevokedAt), record.Reason)
	if err != nil {
		return fmt.Errorf("failed to record revocation: %w", err)
	}
	return nil
}

// IsRevoked reports whether a token hash is in the revocation set
func (s *SQLiteStore) IsRevoked(ctx context.Context, tokenHash string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM revocations WHERE token_hash = ?`, tokenHash).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check revocation: %w", err)
	}
	return count > 0, nil
}

// AppendAuditEvent appends an event to the audit log
func (s *SQLiteStore) AppendAuditEvent(ctx context.Context, event domain.BindingEvent) error {
	metadata := event.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to encode event metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, workshop_code, business_license, action, timestamp, metadata)
		VALUES (?, ?, ?, ?, ?, ?)`,
		event.ID, event.WorkshopCode, event.BusinessLicense, event.Action,
		encodeTime(event.Timestamp), string(metadataJSON))
	if err != nil {
		return fmt.Errorf("failed to append audit event: %w", err)
	}
	return nil
}

// AuditEvents lists audit events, newest first
func (s *SQLiteStore) AuditEvents(ctx context.Context, filter AuditFilter) ([]domain.BindingEvent, error) {
	query := `SELECT id, workshop_code, business_license, action, timestamp, metadata FROM audit_events`
	var conditions []string
	var args []any
	if filter.WorkshopCode != "" {
		conditions = append(conditions, "workshop_code = ?")
		args = append(args, filter.WorkshopCode)
	}
	if filter.BusinessLicense != "" {
		conditions = append(conditions, "business_license = ?")
		args = append(args, filter.BusinessLicense)
	}
	for i, cond := range conditions {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	query += " ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()

	var events []domain.BindingEvent
	for rows.Next() {
		var event domain.BindingEvent
		var timestamp, metadataJSON string
		if err := rows.Scan(&event.ID, &event.WorkshopCode, &event.BusinessLicense,
			&event.Action, &timestamp, &metadataJSON); err != nil {
			return nil, err
		}
		event.Timestamp = decodeTime(timestamp)
		if err := json.Unmarshal([]byte(metadataJSON), &event.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode event metadata: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// Close closes the underlying database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
