package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

const userColumns = `id, email, password_hash, first_name, last_name, avatar, location, dob,
	is_active, activation_token, activation_token_expires_at,
	password_reset_token, password_reset_token_expires_at, created_at, updated_at`

// Postgres implements Users on top of a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an existing pool; the caller owns its lifecycle.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Connect opens a pool against databaseURL and verifies connectivity.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

func (p *Postgres) FindByEmail(ctx context.Context, email string) (*User, error) {
	return p.findOne(ctx, "email = $1", strings.ToLower(strings.TrimSpace(email)))
}

func (p *Postgres) FindByID(ctx context.Context, id string) (*User, error) {
	return p.findOne(ctx, "id = $1", id)
}

func (p *Postgres) FindByActivationToken(ctx context.Context, tok string) (*User, error) {
	return p.findOne(ctx,
		"activation_token = $1 AND activation_token_expires_at >= now()",
		strings.TrimSpace(tok))
}

func (p *Postgres) FindByResetToken(ctx context.Context, tok string) (*User, error) {
	return p.findOne(ctx,
		"password_reset_token = $1 AND password_reset_token_expires_at >= now()",
		strings.TrimSpace(tok))
}

func (p *Postgres) findOne(ctx context.Context, where string, arg any) (*User, error) {
	query := fmt.Sprintf("SELECT %s FROM users WHERE %s", userColumns, where)
	row := p.pool.QueryRow(ctx, query, arg)
	return scanUser(row)
}

func (p *Postgres) Create(ctx context.Context, in NewUser) (*User, error) {
	query := fmt.Sprintf(`INSERT INTO users (
		id, email, password_hash, first_name, last_name, avatar, location, dob,
		is_active, activation_token, activation_token_expires_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, false, $9, $10)
	RETURNING %s`, userColumns)

	row := p.pool.QueryRow(ctx, query,
		uuid.NewString(),
		strings.ToLower(strings.TrimSpace(in.Email)),
		in.PasswordHash,
		in.FirstName,
		in.LastName,
		nullableString(in.Avatar),
		nullableString(in.Location),
		in.DOB,
		nullableString(in.ActivationToken),
		nullableTime(in.ActivationTokenExpiresAt),
	)

	user, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}
	return user, nil
}

func (p *Postgres) Update(ctx context.Context, id string, patch UserPatch) (*User, error) {
	sets := make([]string, 0, 8)
	args := make([]any, 0, 8)

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.PasswordHash != nil {
		add("password_hash", *patch.PasswordHash)
	}
	if patch.IsActive != nil {
		add("is_active", *patch.IsActive)
	}
	if patch.ActivationToken != nil {
		add("activation_token", nullableString(*patch.ActivationToken))
	}
	if patch.ActivationTokenExpiresAt != nil {
		add("activation_token_expires_at", nullableTime(*patch.ActivationTokenExpiresAt))
	}
	if patch.PasswordResetToken != nil {
		add("password_reset_token", nullableString(*patch.PasswordResetToken))
	}
	if patch.PasswordResetTokenExpiresAt != nil {
		add("password_reset_token_expires_at", nullableTime(*patch.PasswordResetTokenExpiresAt))
	}

	if len(sets) == 0 {
		return p.FindByID(ctx, id)
	}

	add("updated_at", time.Now())
	args = append(args, id)

	query := fmt.Sprintf("UPDATE users SET %s WHERE id = $%d RETURNING %s",
		strings.Join(sets, ", "), len(args), userColumns)

	return scanUser(p.pool.QueryRow(ctx, query, args...))
}

func scanUser(row pgx.Row) (*User, error) {
	var (
		u                  User
		avatar, location   *string
		actTok, resetTok   *string
		dob, actExp, rsExp *time.Time
	)

	err := row.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName,
		&avatar, &location, &dob,
		&u.IsActive, &actTok, &actExp,
		&resetTok, &rsExp, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if avatar != nil {
		u.Avatar = *avatar
	}
	if location != nil {
		u.Location = *location
	}
	if actTok != nil {
		u.ActivationToken = *actTok
	}
	if resetTok != nil {
		u.PasswordResetToken = *resetTok
	}
	u.DOB = dob
	u.ActivationTokenExpiresAt = actExp
	u.PasswordResetTokenExpiresAt = rsExp

	return &u, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
