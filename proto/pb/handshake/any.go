// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package handshake

import (
	"fmt"
	"strings"

	"google.golang.org/protobuf/encoding/protowire"
)

// typeURLPrefix matches the canonical google.protobuf.Any resolver prefix.
const typeURLPrefix = "type.googleapis.com/org.interconnection.v2."

// Any carries a type-erased parameter blob, shaped like google.protobuf.Any.
type Any struct {
	TypeUrl string
	Value   []byte
}

func (a *Any) Marshal() []byte {
	var b []byte
	b = appendStringField(b, 1, a.TypeUrl)
	b = appendBytesField(b, 2, a.Value)
	return b
}

func (a *Any) Unmarshal(b []byte) error {
	*a = Any{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return parseErr(n)
		}
		b = b[n:]
		var err error
		switch num {
		case 1:
			a.TypeUrl, n, err = consumeString(b)
		case 2:
			a.Value, n, err = consumeBytes(b)
		default:
			n, err = skipField(b, num, typ)
		}
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

// PackAny wraps a message into an Any under the given short type name
// (e.g. "algos.LrHyperparamsProposal").
func PackAny(name string, m Message) *Any {
	return &Any{
		TypeUrl: typeURLPrefix + name,
		Value:   m.Marshal(),
	}
}

// UnpackAny decodes an Any into dst, verifying the short type name.
func UnpackAny(a *Any, name string, dst Message) error {
	if a == nil {
		return fmt.Errorf("handshake: missing %s param", name)
	}
	if !strings.HasSuffix(a.TypeUrl, "."+name) && a.TypeUrl != typeURLPrefix+name {
		return fmt.Errorf("handshake: param type %q, want %q", a.TypeUrl, name)
	}
	if err := dst.Unmarshal(a.Value); err != nil {
		return fmt.Errorf("handshake: unpack %s: %w", name, err)
	}
	return nil
}
