// Package trace records simulation events and encodes them as canonical
// CBOR, so that two runs can be compared byte for byte.
package trace

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"

	"github.com/wippyai/cppsim/errors"
	"github.com/wippyai/cppsim/sim"
)

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("trace: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

// Record is one event in a trace. Pointer identities are replaced by the
// descriptions the event renders.
type Record struct {
	Step      int    `cbor:"1,keyasint"`
	Type      string `cbor:"2,keyasint"`
	Severity  string `cbor:"3,keyasint,omitempty"`
	Construct string `cbor:"4,keyasint,omitempty"`
	Object    string `cbor:"5,keyasint,omitempty"`
	Value     string `cbor:"6,keyasint,omitempty"`
	Message   string `cbor:"7,keyasint,omitempty"`
}

// NewRecord converts a simulation event.
func NewRecord(e sim.Event) Record {
	r := Record{
		Step:    e.Step,
		Type:    e.Type.String(),
		Message: e.Message,
	}
	if e.Severity != sim.SeverityNone {
		r.Severity = e.Severity.String()
	}
	if e.Instance != nil {
		r.Construct = e.Instance.Model().Describe()
	}
	if e.Object != nil {
		r.Object = e.Object.String()
	}
	if e.Value.Type() != nil {
		r.Value = e.Value.String()
	}
	return r
}

func (r Record) String() string {
	s := fmt.Sprintf("%d %s", r.Step, r.Type)
	for _, part := range []string{r.Construct, r.Object} {
		if part != "" {
			s += " " + part
		}
	}
	if r.Value != "" {
		s += " = " + r.Value
	}
	if r.Severity != "" {
		s += " [" + r.Severity + "]"
	}
	if r.Message != "" {
		s += ": " + r.Message
	}
	return s
}

// Trace is a recorded run.
type Trace struct {
	Program string   `cbor:"1,keyasint,omitempty"`
	Seed    int64    `cbor:"2,keyasint"`
	Input   string   `cbor:"3,keyasint,omitempty"`
	Records []Record `cbor:"4,keyasint"`
}

// Marshal encodes t as canonical CBOR.
func Marshal(t *Trace) ([]byte, error) {
	data, err := encMode.Marshal(t)
	if err != nil {
		return nil, errors.New(errors.PhaseTrace, errors.KindInvalidData).
			Detail("encode trace").Cause(err).Build()
	}
	return data, nil
}

// Unmarshal decodes a trace written by Marshal.
func Unmarshal(data []byte) (*Trace, error) {
	var t Trace
	if err := cbor.Unmarshal(data, &t); err != nil {
		return nil, errors.New(errors.PhaseTrace, errors.KindInvalidData).
			Detail("decode trace").Cause(err).Build()
	}
	return &t, nil
}

// Digest is the hex SHA-256 of the canonical encoding. Equal traces have
// equal digests.
func Digest(t *Trace) (string, error) {
	data, err := Marshal(t)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// WriteFile writes the encoded trace to path.
func WriteFile(path string, t *Trace) error {
	data, err := Marshal(t)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.New(errors.PhaseTrace, errors.KindInvalidInput).
			Path(path).Detail("write trace").Cause(err).Build()
	}
	return nil
}

// ReadFile reads a trace written by WriteFile.
func ReadFile(path string) (*Trace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(errors.PhaseTrace, errors.KindNotFound).
			Path(path).Detail("read trace").Cause(err).Build()
	}
	return Unmarshal(data)
}

// Diff returns the index of the first record at which a and b differ, or -1
// if they are identical.
func Diff(a, b *Trace) int {
	n := min(len(a.Records), len(b.Records))
	for i := 0; i < n; i++ {
		if a.Records[i] != b.Records[i] {
			return i
		}
	}
	if len(a.Records) != len(b.Records) {
		return n
	}
	return -1
}
