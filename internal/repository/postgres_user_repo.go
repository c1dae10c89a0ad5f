package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/prmconsole/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

const selectUserColumns = `SELECT id, email, name, created_at, updated_at FROM users`

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, selectUserColumns+` WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, selectUserColumns+` WHERE lower(email) = lower($1)`, email))
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return user, nil
}

// FindPasswordHash はユーザーのパスワードハッシュを返す。
// パスワード未設定（外部IdPのみ）の場合は空文字列を返す。
func (r *PostgresUserRepo) FindPasswordHash(ctx context.Context, userID string) (string, error) {
	var hash sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT password_hash FROM users WHERE id = $1`,
		userID,
	).Scan(&hash)

	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to find password hash: %w", err)
	}

	return hash.String, nil
}

// CreateWithPassword はユーザーをパスワードハッシュ付きで作成する。
func (r *PostgresUserRepo) CreateWithPassword(ctx context.Context, user *model.User, passwordHash string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, name, password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		user.ID, user.Email, user.Name, passwordHash, user.CreatedAt, user.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// CreateWithExternalAccount はユーザーと外部アカウントを同一トランザクションで作成する。
func (r *PostgresUserRepo) CreateWithExternalAccount(ctx context.Context, user *model.User, account *model.ExternalAccount) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, email, name, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		user.ID, user.Email, user.Name, user.CreatedAt, user.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO external_accounts (id, user_id, provider, provider_user_id, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		account.ID, account.UserID, account.Provider, account.ProviderUserID, account.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert external account: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// scanUser は1行をUserに変換する。行が無い場合はnil, nilを返す。
func scanUser(row *sql.Row) (*model.User, error) {
	user := &model.User{}
	err := row.Scan(&user.ID, &user.Email, &user.Name, &user.CreatedAt, &user.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
