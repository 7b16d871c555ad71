// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package status carries the wire-level error taxonomy of the handshake.
// The aggregator never fails across the wire: every non-OK status becomes a
// response header broadcast to all proposers.
package status

import (
	"fmt"

	pb "github.com/luxfi/interconnect/proto/pb/handshake"
)

// Status pairs a wire error code with a human-readable message.
type Status struct {
	Code pb.ErrorCode
	Msg  string
}

// OK reports whether the status is a success.
func (s *Status) OK() bool {
	return s == nil || s.Code == pb.ErrorCode_OK
}

func (s *Status) Error() string {
	return fmt.Sprintf("%s: %s", s.Code, s.Msg)
}

// InvalidRequest flags a structurally incomplete envelope.
func InvalidRequest(msg string) *Status {
	return &Status{Code: pb.ErrorCode_INVALID_REQUEST, Msg: msg}
}

// HandshakeRefused flags a semantic disagreement between proposals.
func HandshakeRefused(msg string) *Status {
	return &Status{Code: pb.ErrorCode_HANDSHAKE_REFUSED, Msg: msg}
}

// UnsupportedArgument flags a local preference missing from the intersection.
func UnsupportedArgument(msg string) *Status {
	return &Status{Code: pb.ErrorCode_UNSUPPORTED_ARGUMENT, Msg: msg}
}
