package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/prmconsole/internal/model"
)

// PostgresProfileRepo はPostgreSQLを使用したプロフィールリポジトリ。
type PostgresProfileRepo struct {
	db *sql.DB
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

const selectProfileColumns = `SELECT id, name, email, role, avatar_url, department, active, created_at, updated_at FROM profiles`

// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByID(ctx context.Context, id string) (*model.Profile, error) {
	p, err := scanProfile(r.db.QueryRowContext(ctx, selectProfileColumns+` WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find profile: %w", err)
	}
	return p, nil
}

// Create はプロフィールを作成する。
func (r *PostgresProfileRepo) Create(ctx context.Context, p *model.Profile) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO profiles (id, name, email, role, avatar_url, department, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.Name, p.Email, string(p.Role), nullString(p.AvatarURL), p.Department, p.Active, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

// Update はプロフィールの可変項目を更新する。
func (r *PostgresProfileRepo) Update(ctx context.Context, p *model.Profile) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE profiles
		 SET name = $2, role = $3, avatar_url = $4, department = $5, active = $6, updated_at = $7
		 WHERE id = $1`,
		p.ID, p.Name, string(p.Role), nullString(p.AvatarURL), p.Department, p.Active, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("profile not found: %s", p.ID)
	}
	return nil
}

// List は全プロフィールを作成日時の昇順で返す。
func (r *PostgresProfileRepo) List(ctx context.Context) ([]*model.Profile, error) {
	rows, err := r.db.QueryContext(ctx, selectProfileColumns+` ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*model.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate profiles: %w", err)
	}
	return profiles, nil
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*model.Profile, error) {
	p := &model.Profile{}
	var role string
	var avatar sql.NullString
	err := row.Scan(&p.ID, &p.Name, &p.Email, &role, &avatar, &p.Department, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Role = model.Role(role)
	if avatar.Valid {
		v := avatar.String
		p.AvatarURL = &v
	}
	return p, nil
}

// nullString は*stringをNULL許容の値に変換する。
func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// compile-time interface check
var _ ProfileRepository = (*PostgresProfileRepo)(nil)
