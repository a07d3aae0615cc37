package identity

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/poc/grpc-services/internal/errs"
)

// PostgresRepository stores users in the users table.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const userColumns = `id, username, email, password_hash, first_name, last_name, phone, roles,
	is_active, is_email_verified, failed_login_attempts, locked_until, version, created_at, updated_at`

func (r *PostgresRepository) Create(ctx context.Context, u *User) error {
	const q = `INSERT INTO users (id, username, email, password_hash, first_name, last_name, phone, roles,
		is_active, is_email_verified, failed_login_attempts, locked_until, version, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,1,now(),now())
		RETURNING version, created_at, updated_at`
	err := r.db.QueryRowContext(ctx, q,
		u.ID, u.Username, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Phone, pq.Array(u.Roles),
		u.IsActive, u.IsEmailVerified, u.FailedLoginAttempts, u.LockedUntil,
	).Scan(&u.Version, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return errs.New(errs.KindAlreadyExists, "username or email already registered")
		}
		return errs.Wrap(errs.KindUnexpected, "create user failed", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*User, error) {
	return r.getBy(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *PostgresRepository) GetByUsername(ctx context.Context, username string) (*User, error) {
	return r.getBy(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
}

func (r *PostgresRepository) getBy(ctx context.Context, query string, arg any) (*User, error) {
	u := &User{}
	var roles pq.StringArray
	var lockedUntil sql.NullTime
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.Phone, &roles,
		&u.IsActive, &u.IsEmailVerified, &u.FailedLoginAttempts, &lockedUntil,
		&u.Version, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.New(errs.KindNotFound, "user not found")
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindUnexpected, "load user failed", err)
	}
	u.Roles = roles
	if lockedUntil.Valid {
		t := lockedUntil.Time
		u.LockedUntil = &t
	}
	return u, nil
}

// Save writes the record back guarded by the version it was read at. A row
// that moved on concurrently leaves zero rows affected.
func (r *PostgresRepository) Save(ctx context.Context, u *User) error {
	const q = `UPDATE users SET email=$1, password_hash=$2, first_name=$3, last_name=$4, phone=$5, roles=$6,
		is_active=$7, is_email_verified=$8, failed_login_attempts=$9, locked_until=$10,
		version=version+1, updated_at=now()
		WHERE id=$11 AND version=$12
		RETURNING version, updated_at`
	err := r.db.QueryRowContext(ctx, q,
		u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Phone, pq.Array(u.Roles),
		u.IsActive, u.IsEmailVerified, u.FailedLoginAttempts, u.LockedUntil,
		u.ID, u.Version,
	).Scan(&u.Version, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		if _, lookupErr := r.GetByID(ctx, u.ID); errs.Is(lookupErr, errs.KindNotFound) {
			return lookupErr
		}
		return errs.New(errs.KindVersionConflict, "user was modified concurrently")
	}
	if err != nil {
		return errs.Wrap(errs.KindUnexpected, "save user failed", err)
	}
	return nil
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
