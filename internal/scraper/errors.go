package scraper

import "errors"

var (
	ErrInvalidTrainNumber  = errors.New("train number must be 5 digits")
	ErrInvalidPNR          = errors.New("pnr number must be 10 digits")
	ErrNotFound            = errors.New("no data found upstream")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrDisallowedByRobots  = errors.New("path disallowed by robots.txt")
)
