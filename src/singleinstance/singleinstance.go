package singleinstance

// This file defines the API for single-instance ownership, trigger delivery
// and run-once delegation.

import (
	"context"
)

// Server owns the TCP endpoint and answers trigger and run-once requests.
type Server interface {
	// Start begins listening on the first port of the configured range.
	Start(ctx context.Context) error
	// Port returns the bound TCP port, or 0 if not started.
	Port() int
	// Next returns the next accepted connection as a Conn, or ctx error.
	Next(ctx context.Context) (Conn, error)
	// Close releases ownership and stops accepting clients.
	Close() error
}

// Conn represents one client connection and exposes request + response API.
type Conn interface {
	// Request returns the parsed client request.
	Request() Request
	// RespondSuccess sends success. For stdout mode, send text; for clipboard mode, send empty text.
	RespondSuccess(text string) error
	// RespondError sends an error with human-readable message.
	RespondError(msg string) error
	// Close closes the underlying connection.
	Close() error
}

// RequestKind distinguishes fire-and-forget triggers from run-once requests
// that wait for the translation.
type RequestKind int

const (
	RequestTrigger RequestKind = iota
	RequestRunOnce
)

// Request represents a single client request.
type Request struct {
	Kind           RequestKind
	Action         string
	OutputToStdout bool
}

// Client attempts to delegate to a resident server.
type Client interface {
	// TryTrigger asks the resident to run action as if its hotkey fired.
	// If no resident is found, returns delegated=false, err=nil.
	TryTrigger(ctx context.Context, action string) (delegated bool, err error)
	// TryRunOnce asks the resident to run action and waits for the result.
	// If no resident is found, returns delegated=false, err=nil.
	TryRunOnce(ctx context.Context, action string, outputToStdout bool) (delegated bool, text string, err error)
}

// NewServer returns TCP implementation.
func NewServer() Server { return newTcpServer() }

// NewClient returns TCP implementation.
func NewClient() Client { return newTcpClient() }
