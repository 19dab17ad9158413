// internal/launchpad/errors.go
package launchpad

import "errors"

var (
	ErrUnauthorized    = errors.New("caller is not the administrator")
	ErrUnconfigured    = errors.New("global config is not set")
	ErrAlreadyLaunched = errors.New("curve already launched for mint")
	ErrCurveNotFound   = errors.New("curve not found")
	ErrInvalidLaunch   = errors.New("invalid launch parameters")
	ErrInvalidTrader   = errors.New("trader identity is empty")
)
