// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package transport provides the reliable point-to-point mesh the handshake
// and the algorithms run over. The world is a fixed set of ranks 0..W-1;
// delivery is FIFO per (src, dst, tag).
package transport

import (
	"errors"
	"fmt"
)

// Tags used by the handshake state machine.
const (
	TagHandshake         = "Handshake"
	TagHandshakeResponse = "Handshake_response"
)

var (
	// ErrTimeout is returned by Recv when the configured receive window
	// expires. It propagates as an unrecoverable handshake failure.
	ErrTimeout = errors.New("transport: recv timeout")
	// ErrClosed is returned once the transport is shut down.
	ErrClosed = errors.New("transport: closed")
)

// Transport is a reliable, ordered, tag-addressed mesh between ranks.
type Transport interface {
	// Rank returns the local rank.
	Rank() int32
	// WorldSize returns the cohort size W.
	WorldSize() int32
	// Send delivers p to dst under tag, blocking until written.
	Send(dst int32, tag string, p []byte) error
	// SendAsync delivers p to dst under tag without waiting; ordering per
	// (src, dst, tag) is still preserved.
	SendAsync(dst int32, tag string, p []byte) error
	// Recv blocks until a message from src under tag arrives.
	Recv(src int32, tag string) ([]byte, error)
	// Close tears the mesh down.
	Close() error
}

// PartyID returns the canonical id of a rank, used by env-driven
// configuration (label_owner, feature_nums keys).
func PartyID(rank int32) string {
	return fmt.Sprintf("party%d", rank)
}
