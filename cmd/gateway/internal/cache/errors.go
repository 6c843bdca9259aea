package cache

import "errors"

var ErrSynthetic = errors.New("synthetic quotes are never cached")
