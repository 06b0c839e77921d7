package feed

import (
	"errors"
	"fmt"
)

// ErrConfiguration is matched by every *ConfigurationError.
var ErrConfiguration = errors.New("feed: configuration error")

// ConfigurationError means the feed cannot be built at all, usually because
// the site URL is unset.
type ConfigurationError struct {
	Field string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("feed: %s must be set", e.Field)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// RenderError wraps a failure to render or post-process a single post.
type RenderError struct {
	PostID string
	Err    error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("feed: render post %q: %v", e.PostID, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// SerializationError reports a Document that cannot be written as RSS.
type SerializationError struct {
	Reason string
	Err    error
}

func (e *SerializationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("feed: serialize: %s: %v", e.Reason, e.Err)
	}
	return "feed: serialize: " + e.Reason
}

func (e *SerializationError) Unwrap() error { return e.Err }
