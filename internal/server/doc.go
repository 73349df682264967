// Package server implements the WebSocket relay core for Veilchat.
//
// The implementation is organized into specialized files for configuration,
// the room hub, clients, routing, rate limiting, and HTTP handlers to keep
// the codebase maintainable and testable as the project grows. Payloads are
// relayed verbatim; the server never inspects or decrypts message content.
package server
