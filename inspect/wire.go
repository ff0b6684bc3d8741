package inspect

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("inspect: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Marshal serializes a Snapshot to canonical CBOR.
func Marshal(s *Snapshot) ([]byte, error) {
	return cborEncMode.Marshal(s)
}

// Unmarshal deserializes a Snapshot from CBOR bytes.
func Unmarshal(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, errors.Wrap(err, "inspect: unmarshal snapshot")
	}
	return &s, nil
}

// MarshalAll serializes a list of snapshots as one CBOR array.
func MarshalAll(ss []*Snapshot) ([]byte, error) {
	return cborEncMode.Marshal(ss)
}

// UnmarshalAll deserializes a list written by MarshalAll.
func UnmarshalAll(data []byte) ([]*Snapshot, error) {
	var ss []*Snapshot
	if err := cbor.Unmarshal(data, &ss); err != nil {
		return nil, errors.Wrap(err, "inspect: unmarshal snapshots")
	}
	return ss, nil
}
