package action

import (
	"bytes"
	"log/slog"
	"regexp"
	"strings"
)

var (
	envelopeRe = regexp.MustCompile(`(?s)<ezAction([^>]*)>(.*?)</ezAction>`)
	attrRe     = regexp.MustCompile(`(\w+)="([^"]*)"`)
)

const openTag = "<ezAction"

// Parser extracts actions from an append-only text buffer. Envelopes are
// counted in match order; Extract returns each completed envelope once,
// however many times it is called as the buffer grows. Not safe for
// concurrent use.
type Parser struct {
	buf      []byte
	consumed int // envelopes already returned or rejected
	rejected []*MalformedActionError
	maxBytes int
	logger   *slog.Logger
}

// ParserOption configures a Parser.
type ParserOption func(*Parser)

// WithParserLogger sets the logger used for dropped envelopes.
func WithParserLogger(l *slog.Logger) ParserOption {
	return func(p *Parser) { p.logger = l }
}

// WithMaxBytes bounds the buffer. Zero means unbounded.
func WithMaxBytes(n int) ParserOption {
	return func(p *Parser) { p.maxBytes = n }
}

// NewParser creates an empty Parser.
func NewParser(opts ...ParserOption) *Parser {
	p := &Parser{logger: slog.Default()}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Write appends streamed bytes. It implements io.Writer; past the
// configured limit nothing is appended and ErrBufferFull is returned.
func (p *Parser) Write(b []byte) (int, error) {
	if p.maxBytes > 0 && len(p.buf)+len(b) > p.maxBytes {
		return 0, ErrBufferFull
	}
	p.buf = append(p.buf, b...)
	return len(b), nil
}

// Feed appends a chunk of text.
func (p *Parser) Feed(chunk string) error {
	_, err := p.Write([]byte(chunk))
	return err
}

// Extract returns the actions completed since the previous call, in
// stream order. Envelopes that fail to decode are logged, recorded in
// Rejected and never returned.
func (p *Parser) Extract() []Action {
	matches := findEnvelopes(p.buf)
	var out []Action
	for seq := p.consumed; seq < len(matches); seq++ {
		m := matches[seq]
		raw := string(p.buf[m[0]:m[1]])
		attrs := parseAttrs(string(p.buf[m[2]:m[3]]))
		a, err := Decode(Kind(attrs["type"]), attrs["nodeId"], string(p.buf[m[4]:m[5]]))
		if err != nil {
			merr := &MalformedActionError{Seq: seq, Raw: raw, Err: err}
			p.rejected = append(p.rejected, merr)
			p.logger.Warn("action: envelope dropped", "seq", seq, "type", attrs["type"], "error", err)
			continue
		}
		a.Seq = seq
		out = append(out, a)
	}
	p.consumed = len(matches)
	return out
}

// Rejected returns every envelope dropped so far.
func (p *Parser) Rejected() []*MalformedActionError {
	out := make([]*MalformedActionError, len(p.rejected))
	copy(out, p.rejected)
	return out
}

// Consumed returns the number of envelopes seen so far, dropped ones
// included.
func (p *Parser) Consumed() int { return p.consumed }

// Len returns the buffer size in bytes.
func (p *Parser) Len() int { return len(p.buf) }

// Text returns the buffer with every envelope removed, including a
// trailing one still being streamed: the prose a human reader sees.
func (p *Parser) Text() string {
	s := envelopeRe.ReplaceAllString(string(p.buf), "")
	if i := strings.LastIndex(s, openTag); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// Reset empties the buffer and forgets consumed and rejected envelopes.
func (p *Parser) Reset() {
	p.buf = p.buf[:0]
	p.consumed = 0
	p.rejected = nil
}

// ParseAll extracts every action in text at once. The errors are the
// dropped envelopes, as *MalformedActionError.
func ParseAll(text string) ([]Action, []error) {
	p := NewParser()
	p.buf = []byte(text)
	actions := p.Extract()
	var errs []error
	for _, r := range p.rejected {
		errs = append(errs, r)
	}
	return actions, errs
}

// findEnvelopes returns the submatch indexes of every complete envelope.
// An opener left unclosed is not part of the envelope that follows it: a
// match spanning several openers is re-anchored at the last one.
func findEnvelopes(buf []byte) [][]int {
	matches := envelopeRe.FindAllSubmatchIndex(buf, -1)
	for i, m := range matches {
		k := bytes.LastIndex(buf[m[0]+1:m[1]], []byte(openTag))
		if k < 0 {
			continue
		}
		start := m[0] + 1 + k
		sub := envelopeRe.FindSubmatchIndex(buf[start:m[1]])
		if sub == nil {
			continue
		}
		for j := range sub {
			if sub[j] >= 0 {
				sub[j] += start
			}
		}
		matches[i] = sub
	}
	return matches
}

func parseAttrs(s string) map[string]string {
	attrs := make(map[string]string, 2)
	for _, m := range attrRe.FindAllStringSubmatch(s, -1) {
		if _, seen := attrs[m[1]]; !seen {
			attrs[m[1]] = m[2]
		}
	}
	return attrs
}
