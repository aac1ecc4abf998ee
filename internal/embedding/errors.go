package embedding

import "errors"

var (
	// ErrProviderFailed wraps any failed or malformed provider response.
	ErrProviderFailed = errors.New("embedding provider failed")
	// ErrNoCredential is returned when a remote provider has no API key.
	ErrNoCredential = errors.New("no embedding credential configured")
	// ErrEmptyText is returned for text with nothing to embed.
	ErrEmptyText = errors.New("text is empty")
	// ErrUnknownProvider is returned by NewProvider for an unsupported provider name.
	ErrUnknownProvider = errors.New("unknown embedding provider")
)
