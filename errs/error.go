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

package errs

import (
	"errors"
	"strings"
)

// Error extends the standard error with a namespaced code and a parent
// chain, so callers can test "is this a WARN-severity bad-CRC error" or
// "does this FATAL trace back to a short-read" without string matching.
type Error interface {
	error

	IsCode(code CodeError) bool
	HasCode(code CodeError) bool
	GetCode() CodeError

	Add(parent ...error)
	GetParent() []error
	Unwrap() []error
}

type ers struct {
	code   CodeError
	msg    string
	parent []error
}

func newError(code CodeError, msg string, parent ...error) Error {
	e := &ers{code: code, msg: msg}
	e.Add(parent...)
	return e
}

func (e *ers) Error() string {
	var b strings.Builder
	b.WriteString(e.msg)
	for _, p := range e.parent {
		if p == nil {
			continue
		}
		b.WriteString(": ")
		b.WriteString(p.Error())
	}
	return b.String()
}

func (e *ers) IsCode(code CodeError) bool {
	return e.code == code
}

func (e *ers) HasCode(code CodeError) bool {
	if e.code == code {
		return true
	}
	for _, p := range e.parent {
		var inner Error
		if errors.As(p, &inner) && inner.HasCode(code) {
			return true
		}
	}
	return false
}

func (e *ers) GetCode() CodeError { return e.code }

func (e *ers) Add(parent ...error) {
	for _, p := range parent {
		if p != nil {
			e.parent = append(e.parent, p)
		}
	}
}

func (e *ers) GetParent() []error { return e.parent }
func (e *ers) Unwrap() []error    { return e.parent }

// Is reports whether err is (or wraps) an errs.Error.
func Is(err error) bool {
	var e Error
	return errors.As(err, &e)
}

// HasCode reports whether err is an errs.Error carrying the given code,
// anywhere in its parent chain.
func HasCode(err error, code CodeError) bool {
	var e Error
	if errors.As(err, &e) {
		return e.HasCode(code)
	}
	return false
}
