package ols

import "errors"

var errMissingID = errors.New("top hit carries no identifier")
