package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/prmconsole/internal/model"
)

// PostgresExternalAccountRepo はPostgreSQLを使用した外部アカウントリポジトリ。
type PostgresExternalAccountRepo struct {
	db *sql.DB
}

// NewPostgresExternalAccountRepo はPostgresExternalAccountRepoを生成する。
func NewPostgresExternalAccountRepo(db *sql.DB) *PostgresExternalAccountRepo {
	return &PostgresExternalAccountRepo{db: db}
}

// FindByProviderAndProviderUserID はproviderとprovider_user_idで外部アカウントを検索する。
// 見つからない場合はnilを返す。
func (r *PostgresExternalAccountRepo) FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.ExternalAccount, error) {
	account := &model.ExternalAccount{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, provider, provider_user_id, created_at
		 FROM external_accounts
		 WHERE provider = $1 AND provider_user_id = $2`,
		provider, providerUserID,
	).Scan(&account.ID, &account.UserID, &account.Provider, &account.ProviderUserID, &account.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find external account: %w", err)
	}

	return account, nil
}

// compile-time interface check
var _ ExternalAccountRepository = (*PostgresExternalAccountRepo)(nil)
