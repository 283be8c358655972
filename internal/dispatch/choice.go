package dispatch

import "bytes"

// ChoiceFunc picks which store worker (by peer id) should handle a newly
// arrived request. peerIDs is the network worker's peer registry in
// registration order; payload is the raw request bytes as read off the
// socket.
type ChoiceFunc interface {
	Choose(peerIDs []int, payload []byte) int
}

// RoundRobin cycles through peerIDs, pre-incrementing an offset that
// starts at 0 — meaning the very first choice is peerIDs[1], not
// peerIDs[0], exactly matching the source's round_robin_choice. This is a
// pinned Open Question resolution (see DESIGN.md), not a bug to fix.
type RoundRobin struct {
	offset int
}

// NewRoundRobin returns a RoundRobin policy in its initial state.
func NewRoundRobin() *RoundRobin {
	return &RoundRobin{offset: 0}
}

func (r *RoundRobin) Choose(peerIDs []int, _ []byte) int {
	n := len(peerIDs)
	if n == 0 {
		return -1
	}
	r.offset++
	if r.offset >= n {
		r.offset = 0
	}
	return peerIDs[r.offset]
}

// FirstKeyDigit indexes peerIDs by the byte following the request's first
// space, treated as an ASCII digit offset from '0'. No bounds or digit
// validation is performed — this reproduces the source's
// first_key_digit_choice exactly, including its behavior on non-digit
// bytes and its absence of an n_peers==0 guard (a mod-by-zero panic here
// mirrors the source's undefined behavior in the same situation). See
// DESIGN.md for the resolved Open Question.
type FirstKeyDigit struct{}

func (FirstKeyDigit) Choose(peerIDs []int, payload []byte) int {
	dig := byte('0')
	if space := bytes.IndexByte(payload, ' '); space >= 0 {
		if space+1 < len(payload) {
			dig = payload[space+1]
		} else {
			// The source reads one byte past the space from a
			// NUL-terminated C string; when the space is the last
			// character the byte read is the terminator itself.
			dig = 0
		}
	}
	off := int(dig) - int('0')
	n := len(peerIDs)
	idx := off % n
	return peerIDs[idx]
}
