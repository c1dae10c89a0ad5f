// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/prmconsole/internal/model"
)

// UserRepository はユーザーアカウントの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレス（大文字小文字を区別しない）でユーザーを取得する。
	// 見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// FindPasswordHash はユーザーのパスワードハッシュを返す。
	// 外部IdPのみで登録されたユーザーは空文字列を返す。
	FindPasswordHash(ctx context.Context, userID string) (string, error)

	// CreateWithPassword はユーザーとパスワードハッシュを作成する。
	// メールアドレスが既に使われている場合はErrDuplicateEmailを返す。
	CreateWithPassword(ctx context.Context, user *model.User, passwordHash string) error

	// CreateWithExternalAccount はユーザーと外部アカウントを同一トランザクションで作成する。
	CreateWithExternalAccount(ctx context.Context, user *model.User, account *model.ExternalAccount) error
}

// ExternalAccountRepository は外部IdP紐付け情報の永続化インターフェース。
type ExternalAccountRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idで検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.ExternalAccount, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// Extend は有効なセッションの有効期限を更新する。
	// 期限切れまたは存在しない場合はnilを返す。
	Extend(ctx context.Context, id string, expiresAt time.Time) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
	// DeleteExpiredBefore は指定時刻より前に期限切れになったセッションを削除し、削除件数を返す。
	DeleteExpiredBefore(ctx context.Context, before time.Time) (int64, error)
}

// ProfileRepository はプロフィールの永続化インターフェース。
// 削除操作は提供しない。
type ProfileRepository interface {
	// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Profile, error)
	// Create はプロフィールを作成する。
	Create(ctx context.Context, profile *model.Profile) error
	// Update は名前・アバター・部署・ロール・有効状態を更新する。
	Update(ctx context.Context, profile *model.Profile) error
	// List は全プロフィールを作成日時の昇順で返す。
	List(ctx context.Context) ([]*model.Profile, error)
}

// SettingsRepository はアプリケーション全体設定の永続化インターフェース。
type SettingsRepository interface {
	// Get は設定を取得する。未登録の場合はnilを返す。
	Get(ctx context.Context) (*model.AppSettings, error)
	// Upsert は設定を作成または更新する。
	Upsert(ctx context.Context, settings *model.AppSettings, updatedBy string) error
}

// RecordRepository はPRMレコードの永続化インターフェース。
// すべての操作は所有者IDでスコープされる。
type RecordRepository interface {
	// List は所有者のコレクション内レコードを作成日時の降順で返す。
	List(ctx context.Context, ownerID string, collection model.Collection, includeInactive bool) ([]*model.Record, error)
	// FindByID は所有者のレコードを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, ownerID string, collection model.Collection, id string) (*model.Record, error)
	// Create はレコードを作成する。
	Create(ctx context.Context, record *model.Record) error
	// Update はレコードの名前・ステータス・データを更新する。
	// 対象が存在しない場合はfalseを返す。
	Update(ctx context.Context, record *model.Record) (bool, error)
	// Deactivate はレコードを無効化する。物理削除は行わない。
	// 対象が存在しない場合はfalseを返す。
	Deactivate(ctx context.Context, ownerID string, collection model.Collection, id string) (bool, error)
}
