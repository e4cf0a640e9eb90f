/*
 *  MIT License
 *
 *  Copyright (c) 2020 Nicolas JUHEL
 *
 *  Permission is hereby granted, free of charge, to any person obtaining a copy
 *  of this software and associated documentation files (the "Software"), to deal
 *  in the Software without restriction, including without limitation the rights
 *  to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 *  copies of the Software, and to permit persons to whom the Software is
 *  furnished to do so, subject to the following conditions:
 *
 *  The above copyright notice and this permission notice shall be included in all
 *  copies or substantial portions of the Software.
 *
 *  THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 *  IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 *  FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 *  AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 *  LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 *  OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 *  SOFTWARE.
 *
 */

// Package errs provides a lightweight error-code registry shared by every
// package in this module: a numeric CodeError namespaced per subpackage,
// with a message-function registry and parent-error chaining.
package errs

import (
	"fmt"
	"strconv"
)

// CodeError is a namespaced numeric error code, akin to an errno value
// scoped to this module rather than the platform.
type CodeError uint16

const (
	UnknownError CodeError = 0
	UnknownMessage         = "unknown error"
	NullMessage            = ""
)

// Namespace bases: each subpackage claims a contiguous block of codes.
const (
	MinPkgStream       CodeError = 100
	MinPkgEntry        CodeError = 200
	MinPkgFilter       CodeError = 300
	MinPkgFormat       CodeError = 400
	MinPkgFormatTar    CodeError = 500
	MinPkgFormatZip    CodeError = 600
	MinPkgSideChannel  CodeError = 700
	MinPkgMatch        CodeError = 800
	MinPkgLinkResolver CodeError = 900
	MinPkgDiskWriter   CodeError = 1000
	MinPkgReadArchive  CodeError = 1100
	MinPkgWriteArchive CodeError = 1200

	MinAvailable CodeError = 2000
)

// Message renders a CodeError to a human string. Handlers register their
// own messages in an init() via RegisterIdFctMessage.
type Message func(code CodeError) string

var registry = make(map[CodeError]Message)

// RegisterIdFctMessage associates a message function with the namespace
// that `base` belongs to. Subpackages call this once from init(), passing
// their own lowest code as `base` — every code in the 100-wide block
// rooted at base resolves through the same function.
func RegisterIdFctMessage(base CodeError, fct Message) {
	registry[blockOf(base)] = fct
}

// ExistInMapMessage reports whether a message function is already
// registered for the namespace `base` belongs to. Subpackages use this in
// init() to panic on accidental code collisions between packages.
func ExistInMapMessage(base CodeError) bool {
	_, ok := registry[blockOf(base)]
	return ok
}

func blockOf(c CodeError) CodeError {
	return (c / 100) * 100
}

func (c CodeError) Uint16() uint16 { return uint16(c) }
func (c CodeError) Int() int       { return int(c) }
func (c CodeError) String() string { return strconv.Itoa(c.Int()) }

// Message returns the registered human message for this code, or
// UnknownMessage if none is registered.
func (c CodeError) Message() string {
	if c == UnknownError {
		return UnknownMessage
	}
	if f, ok := registry[blockOf(c)]; ok {
		if m := f(c); m != "" {
			return m
		}
	}
	return UnknownMessage
}

// Error builds a chained Error value from this code and optional parents.
func (c CodeError) Error(parent ...error) Error {
	return newError(c, c.Message(), parent...)
}

// Errorf builds a chained Error value with a formatted message suffix.
func (c CodeError) Errorf(pattern string, args ...any) Error {
	msg := c.Message()
	if pattern != "" {
		msg = fmt.Sprintf("%s: %s", msg, fmt.Sprintf(pattern, args...))
	}
	return newError(c, msg)
}

// ErrorParent is a convenience alias for Error, kept for readability at
// call sites that attach a single underlying cause (mirrors the teacher's
// `ErrorParent` spelling throughout golib).
func (c CodeError) ErrorParent(parent ...error) Error {
	return c.Error(parent...)
}
