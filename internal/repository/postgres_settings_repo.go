package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/hitoshi/prmconsole/internal/model"
)

// PostgresSettingsRepo はPostgreSQLを使用したapp_settingsリポジトリ。
type PostgresSettingsRepo struct {
	db *sql.DB
}

// NewPostgresSettingsRepo はPostgresSettingsRepoを生成する。
func NewPostgresSettingsRepo(db *sql.DB) *PostgresSettingsRepo {
	return &PostgresSettingsRepo{db: db}
}

// Get は設定を取得する。未登録の場合はnilを返す。
func (r *PostgresSettingsRepo) Get(ctx context.Context) (*model.AppSettings, error) {
	s := &model.AppSettings{}
	var logo sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT id, app_name, logo_url, updated_at FROM app_settings LIMIT 1`,
	).Scan(&s.ID, &s.AppName, &logo, &s.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get app settings: %w", err)
	}
	if logo.Valid {
		v := logo.String
		s.LogoURL = &v
	}
	return s, nil
}

// Upsert は設定を作成または更新する。
// シングルトン列の一意制約を使って常に1行に保つ。
func (r *PostgresSettingsRepo) Upsert(ctx context.Context, s *model.AppSettings, updatedBy string) error {
	if s.ID == "" || s.ID == model.DefaultSettingsID {
		s.ID = uuid.New().String()
	}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO app_settings (id, singleton, app_name, logo_url, updated_by, updated_at)
		 VALUES ($1, true, $2, $3, $4, $5)
		 ON CONFLICT (singleton) DO UPDATE
		 SET app_name = EXCLUDED.app_name,
		     logo_url = EXCLUDED.logo_url,
		     updated_by = EXCLUDED.updated_by,
		     updated_at = EXCLUDED.updated_at
		 RETURNING id`,
		s.ID, s.AppName, nullString(s.LogoURL), updatedBy, s.UpdatedAt,
	).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert app settings: %w", err)
	}
	return nil
}

// compile-time interface check
var _ SettingsRepository = (*PostgresSettingsRepo)(nil)
