package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNoSystemDefault        = errors.New("catalog has no system default model")
	ErrMultipleSystemDefaults = errors.New("catalog has more than one system default model")
	ErrDuplicateModelID       = errors.New("duplicate model id")
	ErrInvalidModelConfig     = errors.New("invalid model config")
	ErrProviderNotFound       = errors.New("provider not found")
	ErrProviderError          = errors.New("provider error")
	ErrMissingCredential      = errors.New("missing credential")
	ErrMissingEndpoint        = errors.New("missing endpoint")
	ErrEmptyResponse          = errors.New("empty response")
	ErrNoUserMessage          = errors.New("no user message to send")
	ErrDualFailure            = errors.New("critical: both selected model and fallback model failed")
)

type ProviderErrorKind string

const (
	KindConfiguration ProviderErrorKind = "configuration"
	KindTransport     ProviderErrorKind = "transport"
	KindResponse      ProviderErrorKind = "response"
)

// ProviderError is returned by adapters for every failed attempt.
type ProviderError struct {
	Provider ProviderKind
	ModelID  string
	Kind     ProviderErrorKind
	Err      error
}

func NewProviderError(provider ProviderKind, modelID string, kind ProviderErrorKind, err error) *ProviderError {
	return &ProviderError{Provider: provider, ModelID: modelID, Kind: kind, Err: err}
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s error (%s): %v", e.Provider, e.Kind, e.ModelID, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func (e *ProviderError) Is(target error) bool {
	return target == ErrProviderError
}

// DualFailureError means the selected model and the system default both failed.
type DualFailureError struct {
	PrimaryModelID  string
	FallbackModelID string
	Primary         error
	Fallback        error
}

func (e *DualFailureError) Error() string {
	return fmt.Sprintf("%s (primary %s: %v; fallback %s: %v)",
		ErrDualFailure, e.PrimaryModelID, e.Primary, e.FallbackModelID, e.Fallback)
}

func (e *DualFailureError) Is(target error) bool {
	return target == ErrDualFailure
}

func (e *DualFailureError) Unwrap() []error {
	return []error{e.Primary, e.Fallback}
}
