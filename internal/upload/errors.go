package upload

import "fmt"

// Reason classifies why a candidate or an operation was rejected.
type Reason string

const (
	ReasonMaxFilesReached   Reason = "max_files_reached"
	ReasonTypeNotAllowed    Reason = "type_not_allowed"
	ReasonTooLarge          Reason = "too_large"
	ReasonReadFailed        Reason = "read_failed"
	ReasonCompressionFailed Reason = "compression_failed"
	ReasonStorageError      Reason = "storage_error"
	ReasonDeleteFailed      Reason = "delete_failed"
	ReasonDownloadFailed    Reason = "download_failed"
	ReasonUnknownFile       Reason = "unknown_file"
	ReasonNoFilesToUpload   Reason = "no_files_to_upload"
	ReasonUploadInProgress  Reason = "upload_in_progress"
)

// Error is a rejection carrying a user-facing message.
type Error struct {
	Reason  Reason
	Message string
	Err     error
}

func newError(reason Reason, err error, format string, args ...any) *Error {
	return &Error{Reason: reason, Message: fmt.Sprintf(format, args...), Err: err}
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}
