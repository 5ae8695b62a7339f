package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden         ErrCode = "FORBIDDEN"
	ErrStudentAccessOnly ErrCode = "STUDENT_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Quiz-specific ─────────────────────────────────────────────────
	ErrQuizNotFound      ErrCode = "QUIZ_NOT_FOUND"
	ErrAttemptNotFound   ErrCode = "ATTEMPT_NOT_FOUND"
	ErrAttemptCompleted  ErrCode = "ATTEMPT_COMPLETED"
	ErrAttemptExpired    ErrCode = "ATTEMPT_EXPIRED"
	ErrAttemptNotStarted ErrCode = "ATTEMPT_NOT_STARTED"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Kailangan ang token para sa pagpapatunay."
	case ErrTokenInvalid:
		return "Hindi wasto ang token."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "Wala kang pahintulot na buksan ito."
	case ErrStudentAccessOnly:
		return "Para lamang sa mga mag-aaral ang bahaging ito."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Hindi pumasa sa pagsusuri. Pakisuri ang iyong inilagay."
	case ErrInvalidID:
		return "Hindi wasto ang format ng ID."
	case ErrInvalidPayload:
		return "Hindi wasto ang ipinadalang datos."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Hindi nahanap ang hinahanap."

	// ─── Quiz-specific ─────────────────────────────────────────────────
	case ErrQuizNotFound:
		return "Hindi nahanap ang pagsusulit."
	case ErrAttemptNotFound:
		return "Hindi nahanap ang pagkuha ng pagsusulit."
	case ErrAttemptCompleted:
		return "Natapos mo na ang pagsusulit na ito."
	case ErrAttemptExpired:
		return "Ubos na ang oras para sa pagsusulit na ito."
	case ErrAttemptNotStarted:
		return "Hindi pa nasisimulan ang pagsusulit."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Masyadong maraming kahilingan. Subukan muli mamaya."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Nagkaroon ng error sa server."
	default:
		return "Nagkaroon ng hindi inaasahang error."
	}
}
