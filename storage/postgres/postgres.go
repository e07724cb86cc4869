// Package postgres provides a PostgreSQL implementation of the
// ledger.Storage interface. Multi-row transitions (claims, settlement,
// failure reverts) run in SQL transactions with SELECT FOR UPDATE, and the
// non-void uniqueness of commissions is a partial unique index so the
// database itself rejects a double credit. See schema.sql.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fitreach/commissionledger/pkg/ledger"
)

const uniqueViolationCode = "23505"

// Storage implements ledger.Storage using PostgreSQL
type Storage struct {
	pool   *pgxpool.Pool
	config Config

	// stopCleanup cancels the background cleanup goroutine
	stopCleanup func()
}

// Config holds PostgreSQL storage configuration
type Config struct {
	// ConnectionString is the PostgreSQL connection string
	ConnectionString string

	// Pool configuration
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration

	// Cleanup configuration. Event reservations only need to outlive the
	// sender's retry horizon; old ones are purged in the background.
	CleanupEnabled  bool
	CleanupInterval time.Duration
	ReservationTTL  time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
		CleanupEnabled:  true,
		CleanupInterval: 1 * time.Hour,
		ReservationTTL:  90 * 24 * time.Hour,
	}
}

// New creates a new PostgreSQL storage adapter
func New(ctx context.Context, config Config) (*Storage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	cleanupCtx, cancel := context.WithCancel(context.Background())

	s := &Storage{
		pool:        pool,
		config:      config,
		stopCleanup: cancel,
	}

	if config.CleanupEnabled {
		go s.startCleanup(cleanupCtx)
	}

	return s, nil
}

// Close closes the PostgreSQL connection pool and stops background cleanup
func (s *Storage) Close() {
	if s.stopCleanup != nil {
		s.stopCleanup()
	}
	if s.pool != nil {
		s.pool.Close()
	}
}

// ReserveEvent implements ledger.Storage
func (s *Storage) ReserveEvent(ctx context.Context, key ledger.EventKey) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO event_reservations (transaction_id, event_type, reserved_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT DO NOTHING`,
		key.TransactionID, string(key.Type))
	if err != nil {
		return false, fmt.Errorf("failed to reserve event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseEvent implements ledger.Storage
func (s *Storage) ReleaseEvent(ctx context.Context, key ledger.EventKey) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM event_reservations WHERE transaction_id = $1 AND event_type = $2`,
		key.TransactionID, string(key.Type))
	if err != nil {
		return fmt.Errorf("failed to release event: %w", err)
	}
	return nil
}

// ApplyLifecycle implements ledger.Storage
func (s *Storage) ApplyLifecycle(ctx context.Context, rec *ledger.LifecycleRecord) (*ledger.LifecycleRecord, error) {
	if rec == nil || rec.OriginalTransactionID == "" {
		return nil, fmt.Errorf("invalid lifecycle record")
	}

	// The WHERE on the conflict arm makes stale events no-ops; when it
	// filters the row out, RETURNING yields nothing and we re-read the
	// record that beat us.
	var out ledger.LifecycleRecord
	err := s.pool.QueryRow(ctx,
		`INSERT INTO subscription_lifecycle (original_transaction_id, end_user_id, state, last_event_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (original_transaction_id) DO UPDATE SET
				end_user_id = EXCLUDED.end_user_id,
				state = EXCLUDED.state,
				last_event_at = EXCLUDED.last_event_at
			WHERE subscription_lifecycle.last_event_at <= EXCLUDED.last_event_at
			RETURNING original_transaction_id, end_user_id, state, last_event_at`,
		rec.OriginalTransactionID, rec.EndUserID, string(rec.State), rec.LastEventAt).Scan(
		&out.OriginalTransactionID, &out.EndUserID, &out.State, &out.LastEventAt)

	if err == pgx.ErrNoRows {
		return s.GetLifecycle(ctx, rec.OriginalTransactionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to apply lifecycle: %w", err)
	}
	return &out, nil
}

// GetLifecycle implements ledger.Storage
func (s *Storage) GetLifecycle(ctx context.Context, originalTransactionID string) (*ledger.LifecycleRecord, error) {
	var rec ledger.LifecycleRecord
	err := s.pool.QueryRow(ctx,
		`SELECT original_transaction_id, end_user_id, state, last_event_at
			FROM subscription_lifecycle WHERE original_transaction_id = $1`,
		originalTransactionID).Scan(
		&rec.OriginalTransactionID, &rec.EndUserID, &rec.State, &rec.LastEventAt)

	if err == pgx.ErrNoRows {
		return nil, nil // never seen is not an error
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lifecycle: %w", err)
	}
	return &rec, nil
}

// GetAttribution implements ledger.Storage
func (s *Storage) GetAttribution(ctx context.Context, endUserID string) (*ledger.ReferredUser, error) {
	var ref ledger.ReferredUser
	err := s.pool.QueryRow(ctx,
		`SELECT end_user_id, referral_code, attributed_at
			FROM attributions WHERE end_user_id = $1`,
		endUserID).Scan(&ref.EndUserID, &ref.ReferralCode, &ref.AttributedAt)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attribution: %w", err)
	}
	return &ref, nil
}

// SetAttribution implements ledger.Storage
func (s *Storage) SetAttribution(ctx context.Context, ref *ledger.ReferredUser) error {
	if ref == nil || ref.EndUserID == "" {
		return fmt.Errorf("invalid attribution")
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO attributions (end_user_id, referral_code, attributed_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (end_user_id) DO NOTHING`,
		ref.EndUserID, ledger.NormalizeReferralCode(ref.ReferralCode), ref.AttributedAt)
	if err != nil {
		return fmt.Errorf("failed to set attribution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrAttributionExists
	}
	return nil
}

// GetAffiliate implements ledger.Storage
func (s *Storage) GetAffiliate(ctx context.Context, affiliateID string) (*ledger.Affiliate, error) {
	return s.getAffiliate(ctx, `SELECT id, referral_code, rate_percent, payout_account_ref
		FROM affiliates WHERE id = $1`, affiliateID)
}

// GetAffiliateByCode implements ledger.Storage
func (s *Storage) GetAffiliateByCode(ctx context.Context, referralCode string) (*ledger.Affiliate, error) {
	return s.getAffiliate(ctx, `SELECT id, referral_code, rate_percent, payout_account_ref
		FROM affiliates WHERE referral_code = $1`, ledger.NormalizeReferralCode(referralCode))
}

func (s *Storage) getAffiliate(ctx context.Context, query, arg string) (*ledger.Affiliate, error) {
	var aff ledger.Affiliate
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&aff.ID, &aff.ReferralCode, &aff.RatePercent, &aff.PayoutAccountRef)

	if err == pgx.ErrNoRows {
		return nil, ledger.ErrAffiliateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get affiliate: %w", err)
	}
	return &aff, nil
}

// PutAffiliate implements ledger.Storage
func (s *Storage) PutAffiliate(ctx context.Context, aff *ledger.Affiliate) error {
	if aff == nil || aff.ID == "" || aff.ReferralCode == "" {
		return fmt.Errorf("invalid affiliate")
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO affiliates (id, referral_code, rate_percent, payout_account_ref)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET
				referral_code = EXCLUDED.referral_code,
				rate_percent = EXCLUDED.rate_percent,
				payout_account_ref = EXCLUDED.payout_account_ref`,
		aff.ID, ledger.NormalizeReferralCode(aff.ReferralCode), aff.RatePercent, aff.PayoutAccountRef)

	if isUniqueViolation(err) {
		return ledger.ErrReferralCodeTaken
	}
	if err != nil {
		return fmt.Errorf("failed to put affiliate: %w", err)
	}
	return nil
}

// InsertCommission implements ledger.Storage
func (s *Storage) InsertCommission(ctx context.Context, c *ledger.Commission) error {
	if c == nil || c.ID == "" || c.SourceTransactionID == "" {
		return fmt.Errorf("invalid commission")
	}

	status := c.Status
	if status == "" {
		status = ledger.CommissionPending
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO commissions
			(id, affiliate_id, end_user_id, source_transaction_id, source_event_type,
			amount_minor_units, currency, rate_percent_applied, period, status, payout_id, created_at, paid_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''), $12, $13)`,
		c.ID, c.AffiliateID, c.EndUserID, c.SourceTransactionID, string(c.SourceEventType),
		c.AmountMinorUnits, c.Currency, c.RatePercentApplied, string(c.Period), string(status),
		c.PayoutID, c.CreatedAt, c.PaidAt)

	if isUniqueViolation(err) {
		return ledger.ErrCommissionExists
	}
	if err != nil {
		return fmt.Errorf("failed to insert commission: %w", err)
	}
	return nil
}

// GetCommission implements ledger.Storage
func (s *Storage) GetCommission(ctx context.Context, commissionID string) (*ledger.Commission, error) {
	rows, err := s.pool.Query(ctx, commissionSelect+` WHERE id = $1`, commissionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get commission: %w", err)
	}
	commissions, err := scanCommissions(rows)
	if err != nil {
		return nil, err
	}
	if len(commissions) == 0 {
		return nil, ledger.ErrCommissionNotFound
	}
	return commissions[0], nil
}

// ListCommissions implements ledger.Storage
func (s *Storage) ListCommissions(ctx context.Context, affiliateID string, status ledger.CommissionStatus) ([]*ledger.Commission, error) {
	rows, err := s.pool.Query(ctx,
		commissionSelect+` WHERE affiliate_id = $1 AND status = $2 ORDER BY created_at`,
		affiliateID, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list commissions: %w", err)
	}
	return scanCommissions(rows)
}

// CreateBatchFromPending implements ledger.Storage
func (s *Storage) CreateBatchFromPending(ctx context.Context, b *ledger.PayoutBatch) ([]*ledger.Commission, error) {
	if b == nil || b.PayoutID == "" {
		return nil, fmt.Errorf("invalid payout batch")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		//nolint:errcheck // Rollback error is safe to ignore if transaction was committed
		_ = tx.Rollback(ctx)
	}()

	// The UPDATE ... RETURNING claims every pending row under the payout
	// id; the batch insert below commits with it or not at all, so claimed
	// rows can never outlive their batch.
	rows, err := tx.Query(ctx,
		`WITH claimed AS (
			UPDATE commissions
				SET status = $3, payout_id = $2
				WHERE affiliate_id = $1 AND status = $4
				RETURNING id, affiliate_id, end_user_id, source_transaction_id, source_event_type,
					amount_minor_units, currency, rate_percent_applied, period, status, payout_id, created_at, paid_at
		)
		SELECT id, affiliate_id, end_user_id, source_transaction_id, source_event_type,
			amount_minor_units, currency, rate_percent_applied, period, status, payout_id, created_at, paid_at
		FROM claimed ORDER BY created_at`,
		b.AffiliateID, b.PayoutID, string(ledger.CommissionClaimed), string(ledger.CommissionPending))
	if err != nil {
		return nil, fmt.Errorf("failed to claim commissions: %w", err)
	}
	claimed, err := scanCommissions(rows)
	if err != nil {
		return nil, err
	}
	if len(claimed) == 0 {
		return nil, nil
	}

	b.CommissionIDs = nil
	b.TotalAmountMinor = 0
	b.Currency = claimed[0].Currency
	for _, c := range claimed {
		if c.Currency != b.Currency {
			// Rolling back undoes the claim.
			return nil, fmt.Errorf("%w: %s and %s", ledger.ErrMixedCurrency, b.Currency, c.Currency)
		}
		b.CommissionIDs = append(b.CommissionIDs, c.ID)
		b.TotalAmountMinor += c.AmountMinorUnits
	}

	status := b.Status
	if status == "" {
		status = ledger.BatchCreated
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO payout_batches
			(payout_id, affiliate_id, commission_ids, total_amount_minor, currency,
			external_transfer_ref, status, created_at, submitted_at, settled_at)
			VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9, $10)`,
		b.PayoutID, b.AffiliateID, b.CommissionIDs, b.TotalAmountMinor, b.Currency,
		b.ExternalTransferRef, string(status), b.CreatedAt, b.SubmittedAt, b.SettledAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit batch: %w", err)
	}
	return claimed, nil
}

// GetBatch implements ledger.Storage
func (s *Storage) GetBatch(ctx context.Context, payoutID string) (*ledger.PayoutBatch, error) {
	return s.getBatch(ctx, batchSelect+` WHERE payout_id = $1`, payoutID)
}

// GetBatchByTransferRef implements ledger.Storage
func (s *Storage) GetBatchByTransferRef(ctx context.Context, transferRef string) (*ledger.PayoutBatch, error) {
	return s.getBatch(ctx, batchSelect+` WHERE external_transfer_ref = $1`, transferRef)
}

func (s *Storage) getBatch(ctx context.Context, query, arg string) (*ledger.PayoutBatch, error) {
	b, err := scanBatch(s.pool.QueryRow(ctx, query, arg))
	if err == pgx.ErrNoRows {
		return nil, ledger.ErrBatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}
	return b, nil
}

// MarkBatchSubmitted implements ledger.Storage
func (s *Storage) MarkBatchSubmitted(ctx context.Context, payoutID, transferRef string, at time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		//nolint:errcheck // Rollback error is safe to ignore if transaction was committed
		_ = tx.Rollback(ctx)
	}()

	status, currentRef, err := lockBatch(ctx, tx, payoutID)
	if err != nil {
		return err
	}
	switch status {
	case ledger.BatchSubmitted:
		if currentRef == transferRef {
			return tx.Commit(ctx)
		}
		return fmt.Errorf("%w: batch %s already submitted as %s", ledger.ErrBatchStateConflict, payoutID, currentRef)
	case ledger.BatchCreated:
	default:
		return fmt.Errorf("%w: batch %s is %s", ledger.ErrBatchStateConflict, payoutID, status)
	}

	_, err = tx.Exec(ctx,
		`UPDATE payout_batches
			SET status = $2, external_transfer_ref = $3, submitted_at = $4
			WHERE payout_id = $1`,
		payoutID, string(ledger.BatchSubmitted), transferRef, at)
	if err != nil {
		return fmt.Errorf("failed to mark batch submitted: %w", err)
	}
	return tx.Commit(ctx)
}

// SettleBatch implements ledger.Storage
func (s *Storage) SettleBatch(ctx context.Context, payoutID string, paidAt time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		//nolint:errcheck // Rollback error is safe to ignore if transaction was committed
		_ = tx.Rollback(ctx)
	}()

	status, _, err := lockBatch(ctx, tx, payoutID)
	if err != nil {
		return err
	}
	switch status {
	case ledger.BatchSettled:
		return tx.Commit(ctx) // replayed callback
	case ledger.BatchSubmitted:
	default:
		return fmt.Errorf("%w: batch %s is %s", ledger.ErrBatchStateConflict, payoutID, status)
	}

	_, err = tx.Exec(ctx,
		`UPDATE payout_batches SET status = $2, settled_at = $3 WHERE payout_id = $1`,
		payoutID, string(ledger.BatchSettled), paidAt)
	if err != nil {
		return fmt.Errorf("failed to settle batch: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE commissions SET status = $2, paid_at = $3
			WHERE payout_id = $1 AND status = $4`,
		payoutID, string(ledger.CommissionPaid), paidAt, string(ledger.CommissionClaimed))
	if err != nil {
		return fmt.Errorf("failed to mark commissions paid: %w", err)
	}
	return tx.Commit(ctx)
}

// FailBatch implements ledger.Storage
func (s *Storage) FailBatch(ctx context.Context, payoutID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		//nolint:errcheck // Rollback error is safe to ignore if transaction was committed
		_ = tx.Rollback(ctx)
	}()

	status, _, err := lockBatch(ctx, tx, payoutID)
	if err != nil {
		return err
	}
	switch status {
	case ledger.BatchFailed:
		return tx.Commit(ctx) // replayed callback
	case ledger.BatchSettled:
		return fmt.Errorf("%w: batch %s is settled", ledger.ErrBatchStateConflict, payoutID)
	}

	_, err = tx.Exec(ctx,
		`UPDATE payout_batches SET status = $2 WHERE payout_id = $1`,
		payoutID, string(ledger.BatchFailed))
	if err != nil {
		return fmt.Errorf("failed to fail batch: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE commissions SET status = $2, payout_id = NULL
			WHERE payout_id = $1 AND status = $3`,
		payoutID, string(ledger.CommissionPending), string(ledger.CommissionClaimed))
	if err != nil {
		return fmt.Errorf("failed to revert commissions: %w", err)
	}
	return tx.Commit(ctx)
}

// ListStaleSubmitted implements ledger.Storage
func (s *Storage) ListStaleSubmitted(ctx context.Context, cutoff time.Time) ([]*ledger.PayoutBatch, error) {
	rows, err := s.pool.Query(ctx,
		batchSelect+` WHERE status = $1 AND submitted_at < $2 ORDER BY submitted_at`,
		string(ledger.BatchSubmitted), cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale batches: %w", err)
	}
	defer rows.Close()

	var out []*ledger.PayoutBatch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list stale batches: %w", err)
	}
	return out, nil
}

const commissionSelect = `SELECT id, affiliate_id, end_user_id, source_transaction_id, source_event_type,
	amount_minor_units, currency, rate_percent_applied, period, status, payout_id, created_at, paid_at
	FROM commissions`

const batchSelect = `SELECT payout_id, affiliate_id, commission_ids, total_amount_minor, currency,
	external_transfer_ref, status, created_at, submitted_at, settled_at
	FROM payout_batches`

func scanCommissions(rows pgx.Rows) ([]*ledger.Commission, error) {
	defer rows.Close()

	var out []*ledger.Commission
	for rows.Next() {
		var c ledger.Commission
		var payoutID *string
		if err := rows.Scan(
			&c.ID, &c.AffiliateID, &c.EndUserID, &c.SourceTransactionID, &c.SourceEventType,
			&c.AmountMinorUnits, &c.Currency, &c.RatePercentApplied, &c.Period, &c.Status,
			&payoutID, &c.CreatedAt, &c.PaidAt); err != nil {
			return nil, fmt.Errorf("failed to scan commission: %w", err)
		}
		if payoutID != nil {
			c.PayoutID = *payoutID
		}
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read commissions: %w", err)
	}
	return out, nil
}

func scanBatch(row pgx.Row) (*ledger.PayoutBatch, error) {
	var b ledger.PayoutBatch
	var transferRef *string
	if err := row.Scan(
		&b.PayoutID, &b.AffiliateID, &b.CommissionIDs, &b.TotalAmountMinor, &b.Currency,
		&transferRef, &b.Status, &b.CreatedAt, &b.SubmittedAt, &b.SettledAt); err != nil {
		return nil, err
	}
	if transferRef != nil {
		b.ExternalTransferRef = *transferRef
	}
	return &b, nil
}

func lockBatch(ctx context.Context, tx pgx.Tx, payoutID string) (ledger.BatchStatus, string, error) {
	var status string
	var transferRef *string
	err := tx.QueryRow(ctx,
		`SELECT status, external_transfer_ref FROM payout_batches WHERE payout_id = $1 FOR UPDATE`,
		payoutID).Scan(&status, &transferRef)

	if err == pgx.ErrNoRows {
		return "", "", ledger.ErrBatchNotFound
	}
	if err != nil {
		return "", "", fmt.Errorf("failed to lock batch: %w", err)
	}
	ref := ""
	if transferRef != nil {
		ref = *transferRef
	}
	return ledger.BatchStatus(status), ref, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

// startCleanup runs periodic cleanup of expired event reservations.
// Uses a dedicated context that can be canceled via Close().
func (s *Storage) startCleanup(ctx context.Context) {
	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-s.config.ReservationTTL)
			//nolint:errcheck // Cleanup failures are retried on the next tick
			_, _ = s.pool.Exec(context.Background(),
				`DELETE FROM event_reservations WHERE reserved_at < $1`, cutoff)
		}
	}
}
