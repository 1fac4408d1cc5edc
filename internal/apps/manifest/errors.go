package manifest

import "errors"

var (
	ErrManifestRead  = errors.New("failed to read manifest")
	ErrManifestParse = errors.New("failed to parse manifest")

	ErrMissingName        = errors.New("manifest name is required")
	ErrMissingDescription = errors.New("manifest description is required")
	ErrMissingVersion     = errors.New("manifest version is required")
	ErrMissingAuthor      = errors.New("manifest author is required")
	ErrNameMismatch       = errors.New("manifest name must equal directory name")
	ErrNoTags             = errors.New("manifest requires at least one tag")
	ErrInvalidTag         = errors.New("invalid tag")
	ErrInvalidTimeout     = errors.New("timeout_seconds must be positive")
	ErrInvalidBehavior    = errors.New("invalid timeout_behavior")
	ErrInvalidCooldown    = errors.New("timeout_cooldown_seconds must not be negative")
	ErrDeprecatedKey      = errors.New("deprecated manifest key")
)
