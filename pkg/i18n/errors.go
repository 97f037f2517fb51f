package i18n

import "errors"

var (
	ErrFailedToParseYAML = errors.New("failed to parse YAML content")
	ErrFailedToReadFile  = errors.New("failed to read translation file")
	ErrNoTranslations    = errors.New("no translations loaded")
)
