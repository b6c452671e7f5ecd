package firmware

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// MetaSuffix is appended to an artifact's file name to form its sidecar.
const MetaSuffix = ".meta"

// Metadata describes how an artifact was built. It is stored beside the
// artifact as deterministic CBOR.
type Metadata struct {
	Board          string    `cbor:"1,keyasint"`
	Project        string    `cbor:"2,keyasint,omitempty"`
	Version        string    `cbor:"3,keyasint,omitempty"`
	BuiltAt        time.Time `cbor:"4,keyasint"`
	SHA256         string    `cbor:"5,keyasint,omitempty"`
	ProtocolDigest string    `cbor:"6,keyasint,omitempty"`
	FQBN           string    `cbor:"7,keyasint,omitempty"`
	Size           int64     `cbor:"8,keyasint,omitempty"`
}

var cborEncMode cbor.EncMode

func init() {
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	em, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("firmware: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// MarshalMetadata serializes m to CBOR bytes.
func MarshalMetadata(m Metadata) ([]byte, error) {
	return cborEncMode.Marshal(m)
}

// UnmarshalMetadata deserializes Metadata from CBOR bytes.
func UnmarshalMetadata(data []byte) (Metadata, error) {
	var m Metadata
	if err := cbor.Unmarshal(data, &m); err != nil {
		return Metadata{}, fmt.Errorf("firmware: unmarshal metadata: %w", err)
	}
	return m, nil
}

// MetadataPath returns the sidecar path for an artifact.
func MetadataPath(artifactPath string) string {
	return artifactPath + MetaSuffix
}

// WriteMetadata writes the sidecar for artifactPath.
func WriteMetadata(artifactPath string, m Metadata) error {
	data, err := MarshalMetadata(m)
	if err != nil {
		return err
	}
	return os.WriteFile(MetadataPath(artifactPath), data, 0o644)
}

// ReadMetadata reads the sidecar for artifactPath. ok is false when the
// artifact has none.
func ReadMetadata(artifactPath string) (m Metadata, ok bool, err error) {
	data, err := os.ReadFile(MetadataPath(artifactPath))
	if errors.Is(err, fs.ErrNotExist) {
		return Metadata{}, false, nil
	}
	if err != nil {
		return Metadata{}, false, err
	}
	m, err = UnmarshalMetadata(data)
	if err != nil {
		return Metadata{}, false, err
	}
	return m, true, nil
}
