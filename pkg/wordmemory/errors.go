package wordmemory

import "errors"

var ErrStoreClosed = errors.New("word memory store is closed")
