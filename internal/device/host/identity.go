package host

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

// DefaultMachineIDPath is read when no serial is configured
const DefaultMachineIDPath = "/etc/machine-id"

// SerialLen is the number of identity bytes exposed to the advertiser
const SerialLen = 8

// Serial is a fixed factory serial number.
type Serial []byte

func (s Serial) SerialNumber() []byte { return append([]byte(nil), s...) }

// ParseSerial decodes a hex serial such as "0a1b2c3d".
func ParseSerial(s string) (Serial, error) {
	b, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("serial %q: %w", s, err)
	}
	if len(b) == 0 {
		return nil, fmt.Errorf("serial is empty")
	}
	return Serial(b), nil
}

// MachineSerial derives a stable serial from the host machine id.
func MachineSerial(path string) (Serial, error) {
	if path == "" {
		path = DefaultMachineIDPath
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	id := strings.TrimSpace(string(raw))
	if id == "" {
		return nil, fmt.Errorf("%s is empty", path)
	}
	sum := sha256.Sum256([]byte(id))
	return Serial(sum[:SerialLen]), nil
}
