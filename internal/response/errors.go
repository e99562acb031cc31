package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Client session ────────────────────────────────────────────────
	ErrSessionRequired ErrCode = "SESSION_REQUIRED"
	ErrTokenInvalid    ErrCode = "TOKEN_INVALID"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"
	ErrUnknownBlank   ErrCode = "UNKNOWN_BLANK"
	ErrUnknownChoice  ErrCode = "UNKNOWN_CHOICE"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Hint-specific ─────────────────────────────────────────────────
	ErrHintInFlight     ErrCode = "HINT_REQUEST_IN_FLIGHT"
	ErrInvalidHintLevel ErrCode = "INVALID_HINT_LEVEL"
	ErrInvalidRating    ErrCode = "INVALID_RATING"

	// ─── Upstream ──────────────────────────────────────────────────────
	ErrBackendUnavailable ErrCode = "BACKEND_UNAVAILABLE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Client session ────────────────────────────────────────────────
	case ErrSessionRequired:
		return "セッションが確立されていません。ページを再読み込みしてください。"
	case ErrTokenInvalid:
		return "認証トークンが無効です。"

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "入力内容を確認してください。"
	case ErrInvalidID:
		return "IDの形式が正しくありません。"
	case ErrInvalidPayload:
		return "リクエストの形式が正しくありません。"
	case ErrUnknownBlank:
		return "存在しない空欄です。"
	case ErrUnknownChoice:
		return "選択肢にない回答です。"

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "問題が見つかりません。"

	// ─── Hint-specific ─────────────────────────────────────────────────
	case ErrHintInFlight:
		return "ヒントを生成中です。しばらくお待ちください。"
	case ErrInvalidHintLevel:
		return "指定されたヒントは表示されていません。"
	case ErrInvalidRating:
		return "評価は1から5で指定してください。"

	// ─── Upstream ──────────────────────────────────────────────────────
	case ErrBackendUnavailable:
		return "サーバーとの通信に失敗しました。"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "リクエストが多すぎます。しばらくしてから再度お試しください。"

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "サーバー内部でエラーが発生しました。"
	default:
		return "予期しないエラーが発生しました。"
	}
}
