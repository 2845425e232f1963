package withdrawal

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/dispatchly/ledger-api/internal/pkg/database"
)

// OTPRepository stores withdrawal challenges. Getters return nil, nil when
// no challenge exists for the reference.
type OTPRepository interface {
	// Upsert issues or reissues the challenge for o.Reference, resetting attempts.
	Upsert(ctx context.Context, o *OTP) error
	Get(ctx context.Context, reference string) (*OTP, error)
	// GetForUpdate row-locks the challenge; requires a transaction.
	GetForUpdate(ctx context.Context, reference string) (*OTP, error)
	IncrementAttempts(ctx context.Context, reference string, now time.Time) (int, error)
	MarkVerified(ctx context.Context, reference string, now time.Time) error
}

type otpRepository struct {
	db *sqlx.DB
}

func NewOTPRepository(db *sqlx.DB) OTPRepository {
	return &otpRepository{db: db}
}

const otpColumns = `
	reference, entity_id, entity_type, code_hash, expires_at, attempts,
	used, verified, issued_at, created_at, updated_at
`

func (r *otpRepository) Upsert(ctx context.Context, o *OTP) error {
	query := `
		INSERT INTO withdrawal_otps (` + otpColumns + `)
		VALUES (
			:reference, :entity_id, :entity_type, :code_hash, :expires_at, 0,
			FALSE, FALSE, :issued_at, :created_at, :updated_at
		)
		ON CONFLICT (reference)
		DO UPDATE SET code_hash = EXCLUDED.code_hash,
		              expires_at = EXCLUDED.expires_at,
		              attempts = 0,
		              used = FALSE,
		              verified = FALSE,
		              issued_at = EXCLUDED.issued_at,
		              updated_at = EXCLUDED.updated_at
	`
	_, err := sqlx.NamedExecContext(ctx, database.Executor(ctx, r.db), query, o)
	return err
}

func (r *otpRepository) Get(ctx context.Context, reference string) (*OTP, error) {
	return r.get(ctx, database.Executor(ctx, r.db), reference, "")
}

func (r *otpRepository) GetForUpdate(ctx context.Context, reference string) (*OTP, error) {
	tx, err := database.RequireTx(ctx)
	if err != nil {
		return nil, err
	}
	return r.get(ctx, tx, reference, " FOR UPDATE")
}

func (r *otpRepository) get(ctx context.Context, q sqlx.QueryerContext, reference, suffix string) (*OTP, error) {
	query := `SELECT ` + otpColumns + ` FROM withdrawal_otps WHERE reference = $1` + suffix
	var o OTP
	if err := sqlx.GetContext(ctx, q, &o, query, reference); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}

func (r *otpRepository) IncrementAttempts(ctx context.Context, reference string, now time.Time) (int, error) {
	query := `
		UPDATE withdrawal_otps
		SET attempts = attempts + 1, updated_at = $2
		WHERE reference = $1
		RETURNING attempts
	`
	var attempts int
	if err := database.Executor(ctx, r.db).QueryRowxContext(ctx, query, reference, now).Scan(&attempts); err != nil {
		return 0, err
	}
	return attempts, nil
}

func (r *otpRepository) MarkVerified(ctx context.Context, reference string, now time.Time) error {
	query := `
		UPDATE withdrawal_otps
		SET used = TRUE, verified = TRUE, updated_at = $2
		WHERE reference = $1
	`
	_, err := database.Executor(ctx, r.db).ExecContext(ctx, query, reference, now)
	return err
}
