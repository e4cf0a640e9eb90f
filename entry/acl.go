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

package entry

import (
	"fmt"
	"strconv"
	"strings"
)

// ACLType distinguishes POSIX.1e access/default ACLs from NFSv4 ACLs
// (spec §3.2).
type ACLType uint8

const (
	ACLAccess ACLType = iota
	ACLDefault
	ACLAllow
	ACLDeny
	ACLAudit
	ACLAlarm
)

// ACLTag identifies the qualifier class an ACLEntry applies to.
type ACLTag uint8

const (
	TagUserObj ACLTag = iota
	TagUser
	TagGroupObj
	TagGroup
	TagMask
	TagOther
	TagEveryone
)

// Permission bits (18 base permissions + 7 inheritance flags, per spec
// §3.2), packed into a single bitmap.
type Perm uint32

const (
	PermRead Perm = 1 << iota
	PermWrite
	PermExecute
	PermReadData
	PermListDirectory
	PermAddFile
	PermAppendData
	PermAddSubdirectory
	PermReadNamedAttrs
	PermWriteNamedAttrs
	PermDeleteChild
	PermReadAttributes
	PermWriteAttributes
	PermDelete
	PermReadACL
	PermWriteACL
	PermWriteOwner
	PermSynchronize

	PermFileInherit
	PermDirectoryInherit
	PermNoPropagate
	PermInheritOnly
	PermSuccessfulAccess
	PermFailedAccess
	PermInherited
)

// ACLEntry is the (type, permset, tag, qualifier) tuple of spec §3.2.
type ACLEntry struct {
	Type          ACLType
	Perms         Perm
	Tag           ACLTag
	QualifierID   int64
	QualifierName string
}

// AddACL appends acl unless an equal tuple is already present (idempotent
// add, per spec §4.3).
func (e *Entry) AddACL(a ACLEntry) {
	for _, x := range e.ACL {
		if x == a {
			return
		}
	}
	e.ACL = append(e.ACL, a)
}

// ACLIterator supports the reset/next iteration style named in spec
// §4.3 ("reset-iteration, next").
type ACLIterator struct {
	acl []ACLEntry
	pos int
}

func (e *Entry) ACLIterate() *ACLIterator {
	return &ACLIterator{acl: e.ACL}
}

func (it *ACLIterator) Reset() { it.pos = 0 }

func (it *ACLIterator) Next() (ACLEntry, bool) {
	if it.pos >= len(it.acl) {
		return ACLEntry{}, false
	}
	a := it.acl[it.pos]
	it.pos++
	return a, true
}

func (t ACLTag) String() string {
	switch t {
	case TagUserObj:
		return "user_obj"
	case TagUser:
		return "user"
	case TagGroupObj:
		return "group_obj"
	case TagGroup:
		return "group"
	case TagMask:
		return "mask"
	case TagOther:
		return "other"
	case TagEveryone:
		return "everyone"
	default:
		return "unknown"
	}
}

func (t ACLType) isNFSv4() bool {
	return t == ACLAllow || t == ACLDeny || t == ACLAudit || t == ACLAlarm
}

func (t ACLType) String() string {
	switch t {
	case ACLAccess:
		return "access"
	case ACLDefault:
		return "default"
	case ACLAllow:
		return "allow"
	case ACLDeny:
		return "deny"
	case ACLAudit:
		return "audit"
	case ACLAlarm:
		return "alarm"
	default:
		return "unknown"
	}
}

// ToText renders an ACL entry in POSIX.1e ("user:bob:rwx") or NFSv4
// ("user:bob:rwx::allow") syntax, selected by the entry's own Type
// (spec §4.3 "to-text"). Only the read, write and execute bits are
// rendered, in both syntaxes.
func (a ACLEntry) ToText() string {
	qual := a.QualifierName
	if qual == "" && (a.Tag == TagUser || a.Tag == TagGroup) {
		qual = strconv.FormatInt(a.QualifierID, 10)
	}

	perms := a.permBits()

	if a.Type.isNFSv4() {
		return fmt.Sprintf("%s:%s:%s::%s", a.Tag, qual, perms, a.Type)
	}
	if qual == "" {
		return fmt.Sprintf("%s::%s", a.Tag, perms)
	}
	return fmt.Sprintf("%s:%s:%s", a.Tag, qual, perms)
}

func (a ACLEntry) permBits() string {
	var b strings.Builder
	b.WriteByte(boolByte(a.Perms&(PermRead|PermReadData) != 0, 'r'))
	b.WriteByte(boolByte(a.Perms&PermWrite != 0, 'w'))
	b.WriteByte(boolByte(a.Perms&PermExecute != 0, 'x'))
	return b.String()
}

func boolByte(ok bool, c byte) byte {
	if ok {
		return c
	}
	return '-'
}

// FromText parses a syntactic POSIX.1e ACL entry of the shape
// "tag:qualifier:rwx" (spec §4.3 "from-text"). NFSv4 syntax is not
// round-tripped by FromText: this module only needs to read back what
// ToText wrote for POSIX.1e systems (the common restore path in
// diskwriter); full NFSv4 ACL parsing is a platform ACL-syscall concern
// out of scope per spec §1.
func FromText(s string) (ACLEntry, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 3 {
		return ACLEntry{}, fmt.Errorf("malformed acl text: %q", s)
	}

	var a ACLEntry
	switch parts[0] {
	case "user_obj":
		a.Tag = TagUserObj
	case "user":
		a.Tag = TagUser
	case "group_obj":
		a.Tag = TagGroupObj
	case "group":
		a.Tag = TagGroup
	case "mask":
		a.Tag = TagMask
	case "other":
		a.Tag = TagOther
	case "everyone":
		a.Tag = TagEveryone
	default:
		return ACLEntry{}, fmt.Errorf("unknown acl tag: %q", parts[0])
	}

	a.QualifierName = parts[1]
	if id, err := strconv.ParseInt(parts[1], 10, 64); err == nil {
		a.QualifierID = id
	}

	perms := parts[2]
	if strings.Contains(perms, "r") {
		a.Perms |= PermRead
	}
	if strings.Contains(perms, "w") {
		a.Perms |= PermWrite
	}
	if strings.Contains(perms, "x") {
		a.Perms |= PermExecute
	}

	return a, nil
}
