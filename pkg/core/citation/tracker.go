// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package citation parses [s:N]...[/s:N] source markers out of streamed
// model output. Tags may be split at any point across tokens, so parsing is
// a character-level state machine rather than a scan over the full message.
package citation

import (
	"strconv"
	"strings"
)

type tagState int

const (
	// No tag in progress, passing text through.
	stateIdle tagState = iota
	// Saw '[', waiting for 's' or '/'.
	statePartialOpen
	// Saw '[s', waiting for ':'.
	statePartialOpenTag
	// Saw '[s:', waiting for the first digit.
	statePartialOpenTagColon
	// Saw '[s:' plus one or more digits, waiting for ']' or more digits.
	stateOpenTagDigit
	// Saw '[/', waiting for 's'.
	statePartialCloseTag
	// Saw '[/s', waiting for ':'.
	statePartialCloseTagS
	// Saw '[/s:', waiting for the first digit.
	statePartialCloseTagColon
	// Saw '[/s:' plus one or more digits, waiting for ']' or more digits.
	stateCloseTagDigit
	// Between a matched [s:N] and its [/s:N].
	stateInsideTag
)

// Citation is a completed citation span. StartIndex and EndIndex are
// character offsets into the clean text, tags already removed.
type Citation struct {
	SourceID   int
	StartIndex int
	EndIndex   int
	CitedText  string
}

type activeCitation struct {
	sourceID   int
	startIndex int
	content    strings.Builder
}

// Tracker removes citation tags from streamed text and records citation
// positions as they close. Not safe for concurrent use; each response stream
// owns exactly one Tracker.
type Tracker struct {
	cleanText strings.Builder
	state     tagState
	// Source id of the open citation while state is stateInsideTag.
	insideID int
	// Buffered characters of a tag still being resolved.
	tokenBuffer []rune
	// Character position in the clean text.
	cleanPosition int
	active        *activeCitation
	completed     []Citation
	// State to restore when a buffered tag attempt turns out to be literal
	// text. A '[' can legitimately occur inside cited text, so the tracker
	// must return to stateInsideTag rather than stateIdle in that case.
	prevState    tagState
	hasPrevState bool
}

// NewTracker returns a tracker in the idle state.
func NewTracker() *Tracker {
	return &Tracker{}
}

// AddToken consumes the next token from the stream and returns the clean
// text it contributed plus any citations that closed during this call. A
// citation is reported exactly once, on the call that processes the closing
// ']' of its [/s:N] tag.
func (t *Tracker) AddToken(token string) (string, []Citation) {
	before := len(t.completed)
	var out strings.Builder
	for _, ch := range token {
		t.processChar(ch, &out)
	}
	return out.String(), t.completed[before:]
}

func (t *Tracker) processChar(ch rune, out *strings.Builder) {
	switch t.state {
	case stateIdle:
		if ch == '[' {
			t.tokenBuffer = append(t.tokenBuffer, ch)
			t.prevState = stateIdle
			t.hasPrevState = true
			t.state = statePartialOpen
			return
		}
		t.emit(ch, out)

	case statePartialOpen:
		switch ch {
		case 's':
			t.tokenBuffer = append(t.tokenBuffer, ch)
			t.state = statePartialOpenTag
		case '/':
			t.tokenBuffer = append(t.tokenBuffer, ch)
			t.state = statePartialCloseTag
		default:
			t.tokenBuffer = append(t.tokenBuffer, ch)
			t.flushBuffer(out)
		}

	case statePartialOpenTag:
		t.tokenBuffer = append(t.tokenBuffer, ch)
		if ch == ':' {
			t.state = statePartialOpenTagColon
		} else {
			t.flushBuffer(out)
		}

	case statePartialOpenTagColon:
		t.tokenBuffer = append(t.tokenBuffer, ch)
		if isDigit(ch) {
			t.state = stateOpenTagDigit
		} else {
			t.flushBuffer(out)
		}

	case stateOpenTagDigit:
		t.tokenBuffer = append(t.tokenBuffer, ch)
		switch {
		case ch == ']':
			// Buffer holds "[s:" + digits + "]".
			digits := string(t.tokenBuffer[3 : len(t.tokenBuffer)-1])
			sourceID, err := strconv.Atoi(digits)
			if err != nil {
				t.flushBuffer(out)
				return
			}
			t.state = stateInsideTag
			t.insideID = sourceID
			t.active = &activeCitation{sourceID: sourceID, startIndex: t.cleanPosition}
			t.tokenBuffer = t.tokenBuffer[:0]
			t.hasPrevState = false
		case isDigit(ch):
			// Keep buffering digits.
		default:
			t.flushBuffer(out)
		}

	case statePartialCloseTag:
		t.tokenBuffer = append(t.tokenBuffer, ch)
		if ch == 's' {
			t.state = statePartialCloseTagS
		} else {
			t.flushBuffer(out)
		}

	case statePartialCloseTagS:
		t.tokenBuffer = append(t.tokenBuffer, ch)
		if ch == ':' {
			t.state = statePartialCloseTagColon
		} else {
			t.flushBuffer(out)
		}

	case statePartialCloseTagColon:
		t.tokenBuffer = append(t.tokenBuffer, ch)
		if isDigit(ch) {
			t.state = stateCloseTagDigit
		} else {
			t.flushBuffer(out)
		}

	case stateCloseTagDigit:
		t.tokenBuffer = append(t.tokenBuffer, ch)
		switch {
		case ch == ']':
			// Buffer holds "[/s:" + digits + "]".
			digits := string(t.tokenBuffer[4 : len(t.tokenBuffer)-1])
			sourceID, err := strconv.Atoi(digits)
			if err != nil {
				t.flushBuffer(out)
				return
			}
			// A close tag whose id does not match the open citation consumes
			// the tag but drops the citation. Tolerates model mistakes.
			if t.active != nil && t.active.sourceID == sourceID {
				t.completed = append(t.completed, Citation{
					SourceID:   sourceID,
					StartIndex: t.active.startIndex,
					EndIndex:   t.cleanPosition,
					CitedText:  t.active.content.String(),
				})
			}
			t.active = nil
			t.state = stateIdle
			t.tokenBuffer = t.tokenBuffer[:0]
			t.hasPrevState = false
		case isDigit(ch):
			// Keep buffering digits.
		default:
			t.flushBuffer(out)
		}

	case stateInsideTag:
		if ch == '[' {
			t.tokenBuffer = append(t.tokenBuffer, ch)
			t.prevState = stateInsideTag
			t.hasPrevState = true
			t.state = statePartialOpen
			return
		}
		t.emit(ch, out)
	}
}

// emit appends one clean character to the output, the clean text, and the
// active citation if one is open.
func (t *Tracker) emit(ch rune, out *strings.Builder) {
	t.cleanText.WriteRune(ch)
	if t.active != nil {
		t.active.content.WriteRune(ch)
	}
	t.cleanPosition++
	out.WriteRune(ch)
}

// flushBuffer writes the buffered tag prefix out as literal text and
// restores the state that was current before the '[' arrived.
func (t *Tracker) flushBuffer(out *strings.Builder) {
	for _, ch := range t.tokenBuffer {
		t.cleanText.WriteRune(ch)
		if t.active != nil {
			t.active.content.WriteRune(ch)
		}
		t.cleanPosition++
		out.WriteRune(ch)
	}
	t.tokenBuffer = t.tokenBuffer[:0]
	if t.hasPrevState {
		t.state = t.prevState
		t.hasPrevState = false
		if t.state == stateInsideTag && t.active != nil {
			t.insideID = t.active.sourceID
		}
	} else {
		t.state = stateIdle
	}
}

// Finalize flushes any unresolved tag prefix as literal text and returns the
// full clean text with the completed citations. A trailing "[s" with no
// closing bracket is text, not a citation.
func (t *Tracker) Finalize() (string, []Citation) {
	if len(t.tokenBuffer) > 0 {
		for _, ch := range t.tokenBuffer {
			t.cleanText.WriteRune(ch)
			if t.active != nil {
				t.active.content.WriteRune(ch)
			}
		}
		t.tokenBuffer = t.tokenBuffer[:0]
	}
	return t.cleanText.String(), t.completed
}

func isDigit(ch rune) bool { return ch >= '0' && ch <= '9' }
