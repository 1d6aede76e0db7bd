package sabot

import "errors"

var (
	ErrUnknownPlatform = errors.New("unknown platform")
	ErrNoAdapter       = errors.New("no adapter configured for platform")
	ErrPollerRunning   = errors.New("poller already running")
	ErrPollerStopped   = errors.New("poller not running")
	ErrNoMedia         = errors.New("no media found")
)
