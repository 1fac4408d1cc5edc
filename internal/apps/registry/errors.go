package registry

import "errors"

var (
	ErrAppsDirUnreadable = errors.New("apps directory unreadable")
	ErrAppUnavailable    = errors.New("app unavailable")
	ErrAppUnknown        = errors.New("app not found")
	ErrMissingEnv        = errors.New("missing required environment")
)
