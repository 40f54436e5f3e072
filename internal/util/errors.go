package util

import "errors"

var (
	ErrQuizNotFound       = errors.New("quiz not found")
	ErrQuizNotPublished   = errors.New("quiz not published or not accessible")
	ErrQuizHasSubmissions = errors.New("quiz has submissions and cannot be deleted")
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrAlreadySubmitted   = errors.New("submission already completed")
	ErrSessionNotFound    = errors.New("no active session for submission")
	ErrDeviceUnavailable  = errors.New("capture device unavailable")
	ErrCaptureNotActive   = errors.New("no capture in progress")
	ErrUploadFailure      = errors.New("media upload failed")
	ErrUploadPending      = errors.New("media upload still pending")
	ErrSubmitFailure      = errors.New("submit failed")
	ErrConfirmRequired    = errors.New("submit requires confirmation")
	ErrInvalidGrade       = errors.New("mark out of range for question")
	ErrPermissionDenied   = errors.New("permission denied")
)
