package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/creditmarket/internal/domain"
)

type verificationRepository struct {
	db *sql.DB
}

// NewVerificationRepository создаёт PostgreSQL-хранилище заявок на проверку.
func NewVerificationRepository(store *Store) domain.VerificationRepository {
	return &verificationRepository{db: store.DB()}
}

const verificationColumns = `id, subject_type, subject_id, name, documents, requested_limit_minor,
	status, reason, submitted_at, decided_at`

func (r *verificationRepository) Create(ctx context.Context, v domain.VerificationRequest) error {
	docs, err := json.Marshal(nonNilStrings(v.Documents))
	if err != nil {
		return fmt.Errorf("encode verification documents: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO verification_requests (`+verificationColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		v.ID, string(v.SubjectType), v.SubjectID, v.Name, docs, v.RequestedLimitMinor,
		string(v.Status), v.Reason, v.SubmittedAt.UTC(), nullTime(v.DecidedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("insert verification request: %w", err)
	}
	return nil
}

func (r *verificationRepository) Get(ctx context.Context, id string) (domain.VerificationRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	v, err := scanVerification(r.db.QueryRowContext(ctx,
		`SELECT `+verificationColumns+` FROM verification_requests WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.VerificationRequest{}, domain.ErrVerificationNotFound
		}
		return domain.VerificationRequest{}, fmt.Errorf("get verification request: %w", err)
	}
	return v, nil
}

// Save обновляет решение по заявке; документы и субъект после подачи не меняются.
func (r *verificationRepository) Save(ctx context.Context, v domain.VerificationRequest) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE verification_requests
		SET status = $1,
		    reason = $2,
		    requested_limit_minor = $3,
		    decided_at = $4
		WHERE id = $5
	`, string(v.Status), v.Reason, v.RequestedLimitMinor, nullTime(v.DecidedAt), v.ID)
	if err != nil {
		return fmt.Errorf("update verification request: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for verification request: %w", err)
	}
	if affected == 0 {
		return domain.ErrVerificationNotFound
	}
	return nil
}

// List возвращает заявки в порядке подачи; пустой status — все заявки.
func (r *verificationRepository) List(ctx context.Context, status domain.ApprovalStatus) ([]domain.VerificationRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		rows *sql.Rows
		err  error
	)
	if status == "" {
		rows, err = r.db.QueryContext(ctx,
			`SELECT `+verificationColumns+` FROM verification_requests ORDER BY submitted_at, id`)
	} else {
		rows, err = r.db.QueryContext(ctx,
			`SELECT `+verificationColumns+` FROM verification_requests WHERE status = $1 ORDER BY submitted_at, id`,
			string(status))
	}
	if err != nil {
		return nil, fmt.Errorf("list verification requests: %w", err)
	}
	defer rows.Close()

	result := make([]domain.VerificationRequest, 0)
	for rows.Next() {
		v, err := scanVerification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan verification request: %w", err)
		}
		result = append(result, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate verification requests: %w", err)
	}
	return result, nil
}

func scanVerification(row rowScanner) (domain.VerificationRequest, error) {
	var (
		v          domain.VerificationRequest
		subjectRaw string
		statusRaw  string
		docsRaw    []byte
		decidedAt  sql.NullTime
	)
	if err := row.Scan(
		&v.ID,
		&subjectRaw,
		&v.SubjectID,
		&v.Name,
		&docsRaw,
		&v.RequestedLimitMinor,
		&statusRaw,
		&v.Reason,
		&v.SubmittedAt,
		&decidedAt,
	); err != nil {
		return domain.VerificationRequest{}, err
	}
	if err := json.Unmarshal(docsRaw, &v.Documents); err != nil {
		return domain.VerificationRequest{}, fmt.Errorf("decode verification documents: %w", err)
	}
	v.SubjectType = domain.SubjectType(subjectRaw)
	v.Status = domain.ApprovalStatus(statusRaw)
	v.SubmittedAt = v.SubmittedAt.UTC()
	v.DecidedAt = timeOrZero(decidedAt)
	return v, nil
}

func nonNilStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

var _ domain.VerificationRepository = (*verificationRepository)(nil)
