package graph

import "errors"

var (
	ErrUnknownNode    = errors.New("unknown node")
	ErrInvalidGraph   = errors.New("invalid graph")
	ErrRecursionLimit = errors.New("recursion limit reached")
	ErrNotResumable   = errors.New("thread is not waiting to be resumed")
	ErrThreadExists   = errors.New("thread already exists")
	ErrNoCheckpointer = errors.New("graph has no checkpoint store")
)
