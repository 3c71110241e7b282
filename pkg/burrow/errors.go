package burrow

import "fmt"

// Kind classifies an Error by the failure taxonomy every exported
// operation reports through, so callers can branch on errors.As without
// parsing message text.
type Kind int

const (
	KindSchemaMismatch Kind = iota
	KindTransactionClosed
	KindUniqueViolation
	KindVersionError
	KindWriteTxnRequired
	KindDbFull
	KindIllegalArg
	KindPathError
	KindEncodingError
	KindJsonError
	KindUnsupported
)

func (k Kind) String() string {
	switch k {
	case KindSchemaMismatch:
		return "schema_mismatch"
	case KindTransactionClosed:
		return "transaction_closed"
	case KindUniqueViolation:
		return "unique_violation"
	case KindVersionError:
		return "version_error"
	case KindWriteTxnRequired:
		return "write_txn_required"
	case KindDbFull:
		return "db_full"
	case KindIllegalArg:
		return "illegal_arg"
	case KindPathError:
		return "path_error"
	case KindEncodingError:
		return "encoding_error"
	case KindJsonError:
		return "json_error"
	case KindUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// Error is the single error type every exported burrow operation returns.
// Message carries human-readable detail; Cause, when non-nil, is the
// underlying error (a kvstore or codec failure, typically) and is
// reachable through errors.Unwrap.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("burrow: %s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("burrow: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, SomeKindSentinel) work by kind alone: any *Error
// target matches when its Kind equals e's, whatever its Message and Cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func newErr(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...)}
}

func wrapErr(k Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// ForKind builds a bare sentinel usable with errors.Is, e.g.
// errors.Is(err, burrow.ForKind(burrow.KindUniqueViolation)).
func ForKind(k Kind) error { return &Error{Kind: k} }

// NewError builds an *Error for callers outside this package, such as
// pkg/jsonimport, that need to report failures in burrow's own error
// taxonomy rather than a plain fmt.Errorf.
func NewError(k Kind, format string, args ...any) *Error {
	return newErr(k, format, args...)
}

// WrapError is NewError with an underlying cause reachable via
// errors.Unwrap.
func WrapError(k Kind, cause error, format string, args ...any) *Error {
	return wrapErr(k, cause, format, args...)
}
