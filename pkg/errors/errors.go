// Package errors provides the closed error taxonomy surfaced by the
// object-store adapter and propagated upward through the filesystem.
package errors

import (
	"fmt"
)

// ErrorKind is a closed enumeration of the error conditions the object-store
// adapter can surface. The set is fixed: new vendor error codes map onto an
// existing kind rather than growing the enum.
type ErrorKind string

const (
	Unknown                     ErrorKind = "Unknown"
	Good                        ErrorKind = "Good"
	AccessDenied                ErrorKind = "AccessDenied"
	AccessKeyIdInvalid          ErrorKind = "AccessKeyIdInvalid"
	ActionInvalid               ErrorKind = "ActionInvalid"
	ActionMissing               ErrorKind = "ActionMissing"
	AuthenticationTokenMissing  ErrorKind = "AuthenticationTokenMissing"
	BucketAlreadyOwnedByYou     ErrorKind = "BucketAlreadyOwnedByYou"
	BucketNotExist              ErrorKind = "BucketNotExist"
	ClientUnrecognized          ErrorKind = "ClientUnrecognized"
	ClientTokenIdInvalid        ErrorKind = "ClientTokenIdInvalid"
	InternalFailure             ErrorKind = "InternalFailure"
	KeyNotExist                 ErrorKind = "KeyNotExist"
	NetworkConnection           ErrorKind = "NetworkConnection"
	NoSuchListMultipart         ErrorKind = "NoSuchListMultipart"
	NoSuchListMultipartUploads  ErrorKind = "NoSuchListMultipartUploads"
	NoSuchListObjects           ErrorKind = "NoSuchListObjects"
	ObjectAlreadyInActiveTier   ErrorKind = "ObjectAlreadyInActiveTier"
	ObjectNotInActiveTier       ErrorKind = "ObjectNotInActiveTier"
	ParameterCombinationInvalid ErrorKind = "ParameterCombinationInvalid"
	ParameterMissing            ErrorKind = "ParameterMissing"
	ParameterValueInvalid       ErrorKind = "ParameterValueInvalid"
	QueryParameterInvalid       ErrorKind = "QueryParameterInvalid"
	RequestExpired              ErrorKind = "RequestExpired"
	ResourceNotFound            ErrorKind = "ResourceNotFound"
	ServiceUnavailable          ErrorKind = "ServiceUnavailable"
	SignatureDoesNotMatch       ErrorKind = "SignatureDoesNotMatch"
	SignatureIncompleted        ErrorKind = "SignatureIncompleted"
	SignatureInvalid            ErrorKind = "SignatureInvalid"
	SDKConfigureFileInvalid     ErrorKind = "SDKConfigureFileInvalid"
	SDKRequestSendError         ErrorKind = "SDKRequestSendError"
)

// ClientError is the uniform error type returned by the object-store
// adapter. Kind drives retry and errno translation; Exception is the raw
// vendor exception/code name, kept for diagnostics only.
type ClientError struct {
	Kind       ErrorKind
	Exception  string
	Message    string
	Retryable  bool
	HTTPStatus int
	Cause      error
}

func (e *ClientError) Error() string {
	if e.Exception != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Exception, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a *ClientError with the same Kind.
func (e *ClientError) Is(target error) bool {
	other, ok := target.(*ClientError)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

// New builds a ClientError, filling Retryable from the default
// classification for kind unless the caller overrides it afterward.
func New(kind ErrorKind, message string) *ClientError {
	return &ClientError{
		Kind:      kind,
		Message:   message,
		Retryable: IsRetryableByDefault(kind),
	}
}

// WithCause attaches an underlying error and returns the receiver.
func (e *ClientError) WithCause(cause error) *ClientError {
	e.Cause = cause
	return e
}

// WithException attaches the raw vendor exception/code name.
func (e *ClientError) WithException(name string) *ClientError {
	e.Exception = name
	return e
}

// WithHTTPStatus attaches the HTTP status code that produced this error.
func (e *ClientError) WithHTTPStatus(status int) *ClientError {
	e.HTTPStatus = status
	return e
}

// retryableKinds are terminal-vs-retryable per §7: network/service/expired
// conditions are transient, everything auth/parameter/signature related is
// terminal.
var retryableKinds = map[ErrorKind]bool{
	NetworkConnection:  true,
	ServiceUnavailable: true,
	RequestExpired:     true,
}

// IsRetryableByDefault reports the default retry classification for kind,
// independent of any HTTP-status-derived override.
func IsRetryableByDefault(kind ErrorKind) bool {
	return retryableKinds[kind]
}

// retryableHTTPStatus is the transient HTTP status set from §7.
var retryableHTTPStatus = map[int]bool{
	408: true, 419: true, 429: true, 440: true, 444: true,
	449: true, 450: true, 451: true, 497: true, 502: true,
	504: true, 509: true, 598: true, 599: true,
}

// IsRetryableHTTPStatus reports whether status is in the transient set.
func IsRetryableHTTPStatus(status int) bool {
	return retryableHTTPStatus[status]
}

// httpStatusToKind is the closed translation table from vendor HTTP status
// code to ErrorKind, consulted when no more specific SDK error code is
// available.
var httpStatusToKind = map[int]ErrorKind{
	400: ParameterValueInvalid,
	401: SignatureDoesNotMatch,
	403: AccessDenied,
	404: KeyNotExist,
	405: ActionInvalid,
	409: BucketAlreadyOwnedByYou,
	411: ParameterMissing,
	419: RequestExpired,
	422: ParameterCombinationInvalid,
	429: ServiceUnavailable,
	500: InternalFailure,
	501: ActionInvalid,
	503: ServiceUnavailable,
}

// KindForHTTPStatus translates a vendor HTTP status code to an ErrorKind.
// A status not in the closed table maps to NetworkConnection when it is in
// the transient (retryable) set, and to Unknown otherwise.
func KindForHTTPStatus(status int) ErrorKind {
	if kind, ok := httpStatusToKind[status]; ok {
		return kind
	}
	if IsRetryableHTTPStatus(status) {
		return NetworkConnection
	}
	return Unknown
}

// sdkCodeToKind is the closed translation table from vendor SDK error code
// (e.g. AWS S3 error Code field) to ErrorKind.
var sdkCodeToKind = map[string]ErrorKind{
	"AccessDenied":                AccessDenied,
	"InvalidAccessKeyId":          AccessKeyIdInvalid,
	"InvalidAction":               ActionInvalid,
	"MissingAction":               ActionMissing,
	"MissingAuthenticationToken":  AuthenticationTokenMissing,
	"BucketAlreadyOwnedByYou":     BucketAlreadyOwnedByYou,
	"NoSuchBucket":                BucketNotExist,
	"UnrecognizedClient":          ClientUnrecognized,
	"InvalidClientTokenId":        ClientTokenIdInvalid,
	"InternalError":               InternalFailure,
	"InternalFailure":             InternalFailure,
	"NoSuchKey":                   KeyNotExist,
	"RequestTimeout":              NetworkConnection,
	"RequestTimeTooSkewed":        RequestExpired,
	"NoSuchUpload":                NoSuchListMultipart,
	"NoSuchListMultipartUploads":  NoSuchListMultipartUploads,
	"NoSuchListObjects":           NoSuchListObjects,
	"ObjectAlreadyInActiveTier":   ObjectAlreadyInActiveTier,
	"InvalidObjectState":          ObjectNotInActiveTier,
	"InvalidArgument":             ParameterCombinationInvalid,
	"MissingParameter":            ParameterMissing,
	"InvalidParameterValue":       ParameterValueInvalid,
	"InvalidQueryParameter":       QueryParameterInvalid,
	"RequestExpired":              RequestExpired,
	"ResourceNotFoundException":   ResourceNotFound,
	"ServiceUnavailable":          ServiceUnavailable,
	"SlowDown":                    ServiceUnavailable,
	"SignatureDoesNotMatch":       SignatureDoesNotMatch,
	"IncompleteSignature":         SignatureIncompleted,
	"SignatureInvalid":            SignatureInvalid,
	"InvalidAccessKeyID":          SDKConfigureFileInvalid,
	"RequestError":                SDKRequestSendError,
}

// KindForSDKCode translates a vendor SDK error code string to an ErrorKind,
// defaulting to Unknown when the code is not in the closed table.
func KindForSDKCode(code string) ErrorKind {
	if kind, ok := sdkCodeToKind[code]; ok {
		return kind
	}
	return Unknown
}
