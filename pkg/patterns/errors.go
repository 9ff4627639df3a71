package patterns

import "errors"

var ErrInvalidPattern = errors.New("invalid pattern")
