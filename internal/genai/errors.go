package genai

import (
	"errors"
	"fmt"
)

// ErrExternalService is the sentinel for any remote provider failure.
var ErrExternalService = errors.New("external_service_error")

// ErrProviderRateLimited marks provider-side quota or rate-limit rejections.
// Distinct from the local plan quota check, which never reaches a provider.
var ErrProviderRateLimited = errors.New("provider_rate_limited")

// ProviderError wraps a failed provider call with its stage.
type ProviderError struct {
	Provider    string
	Stage       string
	RateLimited bool
	Err         error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Stage, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Is reports membership in the external-service taxonomy.
func (e *ProviderError) Is(target error) bool {
	if target == ErrExternalService {
		return true
	}
	if target == ErrProviderRateLimited {
		return e.RateLimited
	}
	return false
}
