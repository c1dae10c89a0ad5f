// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, record, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeEmailTaken         = "EMAIL_TAKEN"
	ErrCodeInvalidEmail       = "INVALID_EMAIL"
	ErrCodeWeakPassword       = "WEAK_PASSWORD"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeAccountDisabled    = "ACCOUNT_DISABLED"
	ErrCodeInvalidToken       = "INVALID_TOKEN"
	ErrCodeProfileNotFound    = "PROFILE_NOT_FOUND"
	ErrCodeInvalidRole        = "INVALID_ROLE"
	ErrCodeSelfModification   = "SELF_MODIFICATION"
	ErrCodeInvalidAppName     = "INVALID_APP_NAME"
	ErrCodeInvalidURL         = "INVALID_URL"
	ErrCodeSSRFBlocked        = "SSRF_BLOCKED"
	ErrCodeLogoUnreachable    = "LOGO_UNREACHABLE"
	ErrCodeInvalidCollection  = "INVALID_COLLECTION"
	ErrCodeInvalidStatus      = "INVALID_STATUS"
	ErrCodeInvalidRecord      = "INVALID_RECORD"
	ErrCodeRecordNotFound     = "RECORD_NOT_FOUND"
	ErrCodeOAuthDisabled      = "OAUTH_DISABLED"
	ErrCodeInvalidOAuthState  = "INVALID_OAUTH_STATE"
	ErrCodeCSRFFailed         = "CSRF_FAILED"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// NewInvalidCredentialsError は認証情報不一致エラーを生成する。
// メールアドレスの存在有無は区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度ログインしてください。",
	}
}

// NewEmailTakenError は登録済みメールアドレスのエラーを生成する。
func NewEmailTakenError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailTaken,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "auth",
		Action:   "ログイン画面からログインしてください。",
	}
}

// NewInvalidEmailError は不正なメールアドレスのエラーを生成する。
func NewInvalidEmailError(email string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidEmail,
		Message:  fmt.Sprintf("無効なメールアドレスです: %s", email),
		Category: "validation",
		Action:   "正しいメールアドレスを入力してください。",
	}
}

// NewWeakPasswordError はパスワード要件違反のエラーを生成する。
func NewWeakPasswordError(minLength int) *APIError {
	return &APIError{
		Code:     ErrCodeWeakPassword,
		Message:  fmt.Sprintf("パスワードは%d文字以上にしてください。", minLength),
		Category: "validation",
		Action:   "より長いパスワードを入力してください。",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作を行う権限がありません。",
		Category: "auth",
		Action:   "管理者に権限の付与を依頼してください。",
	}
}

// NewAccountDisabledError は無効化されたアカウントでのサインインを拒否するエラーを生成する。
func NewAccountDisabledError() *APIError {
	return &APIError{
		Code:     ErrCodeAccountDisabled,
		Message:  "このアカウントは無効化されています。",
		Category: "auth",
		Action:   "管理者に連絡してアカウントを有効にしてもらってください。",
	}
}

// NewInvalidTokenError は無効または期限切れのトークンのエラーを生成する。
func NewInvalidTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidToken,
		Message:  "トークンが無効か、有効期限が切れています。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewProfileNotFoundError はプロフィール未検出エラーを生成する。
func NewProfileNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeProfileNotFound,
		Message:  fmt.Sprintf("プロフィールが見つかりません: %s", id),
		Category: "auth",
		Action:   "管理者に連絡してプロフィールを作成してもらってください。",
	}
}

// NewInvalidRoleError は未定義ロールのエラーを生成する。
func NewInvalidRoleError(role string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRole,
		Message:  fmt.Sprintf("無効なロールです: %s", role),
		Category: "validation",
		Action:   "admin、manager、sales_rep、marketing、support、user のいずれかを指定してください。",
	}
}

// NewSelfModificationError は管理者が自分自身の権限を変更しようとした場合のエラーを生成する。
func NewSelfModificationError() *APIError {
	return &APIError{
		Code:     ErrCodeSelfModification,
		Message:  "自分自身のロール変更や無効化はできません。",
		Category: "validation",
		Action:   "別の管理者に操作を依頼してください。",
	}
}

// NewInvalidAppNameError はアプリケーション名が不正な場合のエラーを生成する。
func NewInvalidAppNameError(maxLength int) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidAppName,
		Message:  fmt.Sprintf("アプリケーション名は1文字以上%d文字以下で指定してください。", maxLength),
		Category: "validation",
		Action:   "アプリケーション名を確認してください。",
	}
}

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("無効なURLです: %s", reason),
		Category: "validation",
		Action:   "正しいURL形式（http:// または https:// で始まるURL）を入力してください。",
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  "セキュリティポリシーにより、指定されたURLへのアクセスがブロックされました。",
		Category: "validation",
		Action:   "公開されているWebサイトのURLを入力してください。ローカルネットワークやプライベートIPへのアクセスは許可されていません。",
	}
}

// NewLogoUnreachableError はロゴURLに到達できない場合のエラーを生成する。
func NewLogoUnreachableError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeLogoUnreachable,
		Message:  fmt.Sprintf("ロゴ画像を取得できませんでした: %s", reason),
		Category: "validation",
		Action:   "画像が公開されているURLを指定してください。",
	}
}

// NewInvalidCollectionError は未定義コレクションのエラーを生成する。
func NewInvalidCollectionError(collection string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCollection,
		Message:  fmt.Sprintf("無効なコレクションです: %s", collection),
		Category: "validation",
		Action:   "partners、vendors、products、deals、marketing_campaigns、training_programs、notifications のいずれかを指定してください。",
	}
}

// NewInvalidStatusError はコレクションで許可されないステータスのエラーを生成する。
func NewInvalidStatusError(collection Collection, status string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidStatus,
		Message:  fmt.Sprintf("%s では無効なステータスです: %s", collection, status),
		Category: "validation",
		Action:   fmt.Sprintf("ステータスには %v のいずれかを指定してください。", collection.Statuses()),
	}
}

// NewInvalidRecordError はレコード内容が不正な場合のエラーを生成する。
func NewInvalidRecordError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRecord,
		Message:  fmt.Sprintf("レコードの内容が不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewRecordNotFoundError はレコード未検出エラーを生成する。
func NewRecordNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeRecordNotFound,
		Message:  fmt.Sprintf("指定されたレコードが見つかりません: %s", id),
		Category: "record",
		Action:   "レコードIDを確認してください。",
	}
}

// NewOAuthDisabledError はOAuthログインが無効な場合のエラーを生成する。
func NewOAuthDisabledError() *APIError {
	return &APIError{
		Code:     ErrCodeOAuthDisabled,
		Message:  "外部アカウントでのログインは無効になっています。",
		Category: "auth",
		Action:   "メールアドレスとパスワードでログインしてください。",
	}
}

// NewInvalidOAuthStateError はOAuthのstate検証に失敗した場合のエラーを生成する。
func NewInvalidOAuthStateError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidOAuthState,
		Message:  "ログイン要求の検証に失敗しました。",
		Category: "auth",
		Action:   "もう一度ログインをやり直してください。",
	}
}

// NewCSRFFailedError はCSRFトークン検証の失敗エラーを生成する。
func NewCSRFFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFFailed,
		Message:  "CSRFトークンの検証に失敗しました。",
		Category: "auth",
		Action:   "ページを再読み込みしてから再度お試しください。",
	}
}

// NewRateLimitedError はレート制限超過のエラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "Retry-Afterヘッダーの秒数だけ待ってから再度お試しください。",
	}
}

// NewInvalidRequestError はリクエストボディが不正な場合のエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "リクエストの形式を確認してください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ残す。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
