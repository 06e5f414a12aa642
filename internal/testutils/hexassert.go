package testutils

import (
	"encoding/hex"
	"fmt"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/mcuadros/go-defaults"
)

// TestingT is an interface that matches the methods we need from testing.T
type TestingT interface {
	Errorf(format string, args ...interface{})
}

type HexAssertOptions struct {
	BytesPerLine int  `default:"8"`
	PrefixOnly   bool `default:"false"`
	EnableColors bool `default:"false"`
}

// HexOption is a functional option for configuring HexAsserter
type HexOption func(*HexAssertOptions)

// WithPrefixOnly accepts actual bytes that extend past the expected ones.
func WithPrefixOnly() HexOption {
	return func(o *HexAssertOptions) { o.PrefixOnly = true }
}

func WithBytesPerLine(n int) HexOption {
	return func(o *HexAssertOptions) { o.BytesPerLine = n }
}

func WithColors() HexOption {
	return func(o *HexAssertOptions) { o.EnableColors = true }
}

// HexAsserter compares byte strings against a readable hex notation and
// reports mismatches as a unified diff of the two dumps.
type HexAsserter struct {
	t       TestingT
	options HexAssertOptions
}

// NewHexAsserter creates a new HexAsserter with default options
func NewHexAsserter(t *testing.T) *HexAsserter {
	return NewHexAsserterWithInterface(t)
}

// NewHexAsserterWithInterface creates a new HexAsserter using the TestingT interface
func NewHexAsserterWithInterface(t TestingT) *HexAsserter {
	opts := HexAssertOptions{}
	defaults.SetDefaults(&opts)
	return &HexAsserter{
		t:       t,
		options: opts,
	}
}

// WithOptions applies functional options to the HexAsserter
func (ha *HexAsserter) WithOptions(opts ...HexOption) *HexAsserter {
	for _, opt := range opts {
		opt(&ha.options)
	}
	return ha
}

// GetOptions returns a copy of the current options (for testing)
func (ha *HexAsserter) GetOptions() HexAssertOptions {
	return ha.options
}

// Assert compares actual against expected, written as hex bytes such as
// "02 01 06 | 03 03 AA FE". Whitespace, '|' and ':' separators are ignored.
func (ha *HexAsserter) Assert(actual []byte, expected string) bool {
	want, err := ParseHex(expected)
	if err != nil {
		ha.t.Errorf("Hex assertion failed: bad expectation: %v", err)
		return false
	}

	if diff := ha.diff(actual, want); diff != "" {
		ha.t.Errorf("Hex assertion failed:\n%s", diff)
		return false
	}
	return true
}

func (ha *HexAsserter) diff(actual, expected []byte) string {
	if ha.options.PrefixOnly && len(actual) > len(expected) {
		actual = actual[:len(expected)]
	}

	a := ha.dump(actual)
	e := ha.dump(expected)
	if a == e {
		return ""
	}

	edits := myers.ComputeEdits("", e, a)
	unified := gotextdiff.ToUnified("expected", "actual", e, edits)

	return fmt.Sprintf("Hex assertion failed - unified diff:\n%s", ha.colorize(fmt.Sprint(unified)))
}

// dump renders b as fixed-width lines of "offset: XX XX ..."
func (ha *HexAsserter) dump(b []byte) string {
	n := ha.options.BytesPerLine
	if n <= 0 {
		n = 8
	}

	var sb strings.Builder
	for off := 0; off < len(b); off += n {
		end := min(off+n, len(b))
		fmt.Fprintf(&sb, "%04x:", off)
		for _, c := range b[off:end] {
			fmt.Fprintf(&sb, " %02X", c)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func (ha *HexAsserter) colorize(diff string) string {
	if !ha.options.EnableColors {
		return diff
	}

	red := color.New(color.FgRed)
	red.EnableColor()
	green := color.New(color.FgGreen)
	green.EnableColor()
	cyan := color.New(color.FgCyan)
	cyan.EnableColor()

	lines := strings.Split(diff, "\n")
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "---"), strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "@@"):
			lines[i] = cyan.Sprint(line)
		case strings.HasPrefix(line, "-"):
			lines[i] = red.Sprint(line)
		case strings.HasPrefix(line, "+"):
			lines[i] = green.Sprint(line)
		}
	}
	return strings.Join(lines, "\n")
}

// ParseHex decodes hex notation with optional separators
func ParseHex(s string) ([]byte, error) {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '|', ':', '_':
			return -1
		}
		return r
	}, s)
	return hex.DecodeString(clean)
}

// AssertHex is a shorthand for NewHexAsserterWithInterface(t).Assert.
func AssertHex(t TestingT, actual []byte, expected string, opts ...HexOption) bool {
	return NewHexAsserterWithInterface(t).WithOptions(opts...).Assert(actual, expected)
}
