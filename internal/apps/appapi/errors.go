package appapi

import "errors"

var (
	// ErrAssetEscape is returned when an asset path would resolve outside
	// the app's own directory.
	ErrAssetEscape = errors.New("asset path escapes app directory")
)
