// Copyright 2016 Michael Stapelberg and contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package raster

import (
	"errors"
	"io"
)

type ErrorKind int

const (
	MalformedHeader ErrorKind = iota + 1
	UnsupportedFormat
	SizeMismatch
)

func (k ErrorKind) String() string {
	switch k {
	case MalformedHeader:
		return "malformed header"
	case UnsupportedFormat:
		return "unsupported format"
	case SizeMismatch:
		return "size mismatch"
	default:
		return "<unknown>"
	}
}

// DecodeError is returned for any raster which cannot be decoded.
type DecodeError struct {
	Kind   ErrorKind
	Format Format
	Err    error
}

func (e *DecodeError) Error() string {
	msg := "decoding " + e.Format.String() + " raster: " + e.Kind.String()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a DecodeError of the same kind, so that
// errors.Is(err, ErrSizeMismatch) works regardless of the underlying cause.
func (e *DecodeError) Is(target error) bool {
	t, ok := target.(*DecodeError)
	return ok && t.Kind == e.Kind
}

// Sentinels for use with errors.Is.
var (
	ErrMalformedHeader   = &DecodeError{Kind: MalformedHeader}
	ErrUnsupportedFormat = &DecodeError{Kind: UnsupportedFormat}
	ErrSizeMismatch      = &DecodeError{Kind: SizeMismatch}
)

// truncated reports whether err signals that the pixel data ended early.
func truncated(err error) bool {
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF)
}
