package main

// Default limits for CLI commands.
const (
	DefaultSearchLimit  = 10
	DefaultRelatedLimit = 50
	DefaultMaxDepth     = 2
)
