// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package checksum hashes finished containers and records the digest in a
// JSON sidecar next to them.
//
// The sidecar of archive.zip under the md5 algorithm is archive.zip.md5.json:
//
//	{
//	    "md5": "9e107d9d372bb6826bd81d3542a419d6",
//	    "verification": true
//	}
//
// "verification" is present only when the container was re-read from
// disk after writing and its digest compared with the digest of the
// in-memory bytes. A mismatch is recorded as false; it is a result, not
// an error.
package checksum

import (
	"bytes"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/cpack/lib/atomicfile"
)

// Algorithm names a supported digest.
type Algorithm string

const (
	MD5    Algorithm = "md5"
	SHA256 Algorithm = "sha256"
	BLAKE3 Algorithm = "blake3"
)

// DefaultAlgorithm is used when none is configured.
const DefaultAlgorithm = MD5

// Algorithms lists the supported algorithms.
func Algorithms() []Algorithm {
	return []Algorithm{MD5, SHA256, BLAKE3}
}

// ParseAlgorithm validates an algorithm name. The empty string selects
// DefaultAlgorithm.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch Algorithm(strings.ToLower(strings.TrimSpace(name))) {
	case "":
		return DefaultAlgorithm, nil
	case MD5:
		return MD5, nil
	case SHA256:
		return SHA256, nil
	case BLAKE3:
		return BLAKE3, nil
	default:
		return "", fmt.Errorf("unknown checksum algorithm %q (supported: %v)", name, Algorithms())
	}
}

func (a Algorithm) newHash() (hash.Hash, error) {
	switch a {
	case MD5:
		return md5.New(), nil
	case SHA256:
		return sha256.New(), nil
	case BLAKE3:
		return blake3.New(), nil
	default:
		return nil, fmt.Errorf("unknown checksum algorithm %q", string(a))
	}
}

// Digest is a hex-encoded hash value.
type Digest string

// Compute returns the digest of data.
func Compute(algorithm Algorithm, data []byte) (Digest, error) {
	hasher, err := algorithm.newHash()
	if err != nil {
		return "", err
	}
	hasher.Write(data)
	return Digest(hex.EncodeToString(hasher.Sum(nil))), nil
}

// ComputeFile streams the file at path through the hash.
func ComputeFile(algorithm Algorithm, path string) (Digest, error) {
	hasher, err := algorithm.newHash()
	if err != nil {
		return "", err
	}
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return Digest(hex.EncodeToString(hasher.Sum(nil))), nil
}

// Verify re-reads path and reports whether its digest equals expected.
func Verify(algorithm Algorithm, path string, expected Digest) (bool, error) {
	actual, err := ComputeFile(algorithm, path)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(string(actual), string(expected)), nil
}

// Sidecar is the content of a checksum sidecar file.
type Sidecar struct {
	Algorithm Algorithm
	Digest    Digest

	// Verification is nil when the container was not re-read.
	Verification *bool
}

// SidecarPath returns the sidecar location for the file at path.
func SidecarPath(path string, algorithm Algorithm) string {
	return path + "." + string(algorithm) + ".json"
}

// Marshal returns the sidecar's JSON form: the algorithm name as key for
// the digest, then "verification" when set, indented by four spaces.
func (s *Sidecar) Marshal() ([]byte, error) {
	key, err := json.Marshal(string(s.Algorithm))
	if err != nil {
		return nil, err
	}
	value, err := json.Marshal(string(s.Digest))
	if err != nil {
		return nil, err
	}
	var buffer bytes.Buffer
	buffer.WriteString("{\n    ")
	buffer.Write(key)
	buffer.WriteString(": ")
	buffer.Write(value)
	if s.Verification != nil {
		fmt.Fprintf(&buffer, ",\n    \"verification\": %t", *s.Verification)
	}
	buffer.WriteString("\n}")
	return buffer.Bytes(), nil
}

// WriteSidecar atomically writes the sidecar for the file at path and
// returns the sidecar's location.
func WriteSidecar(path string, sidecar *Sidecar) (string, error) {
	data, err := sidecar.Marshal()
	if err != nil {
		return "", fmt.Errorf("encoding checksum sidecar: %w", err)
	}
	sidecarPath := SidecarPath(path, sidecar.Algorithm)
	if err := atomicfile.WriteFile(sidecarPath, data, 0o644); err != nil {
		return "", err
	}
	return sidecarPath, nil
}

// ReadSidecar loads the sidecar for the file at path.
func ReadSidecar(path string, algorithm Algorithm) (*Sidecar, error) {
	sidecarPath := SidecarPath(path, algorithm)
	data, err := os.ReadFile(sidecarPath)
	if err != nil {
		return nil, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", sidecarPath, err)
	}
	sidecar := &Sidecar{Algorithm: algorithm}
	raw, ok := fields[string(algorithm)]
	if !ok {
		return nil, fmt.Errorf("parsing %s: no %q digest", sidecarPath, string(algorithm))
	}
	if err := json.Unmarshal(raw, &sidecar.Digest); err != nil {
		return nil, fmt.Errorf("parsing %s: digest: %w", sidecarPath, err)
	}
	if raw, ok := fields["verification"]; ok {
		var verified bool
		if err := json.Unmarshal(raw, &verified); err != nil {
			return nil, fmt.Errorf("parsing %s: verification: %w", sidecarPath, err)
		}
		sidecar.Verification = &verified
	}
	return sidecar, nil
}

// Guard computes the digest of data, the bytes just written to path. When
// verify is set, path is re-read and its digest compared. The sidecar is
// written next to path and returned.
func Guard(algorithm Algorithm, path string, data []byte, verify bool) (*Sidecar, error) {
	digest, err := Compute(algorithm, data)
	if err != nil {
		return nil, err
	}
	sidecar := &Sidecar{Algorithm: algorithm, Digest: digest}
	if verify {
		matched, err := Verify(algorithm, path, digest)
		if err != nil {
			return nil, fmt.Errorf("verifying %s: %w", path, err)
		}
		sidecar.Verification = &matched
	}
	if _, err := WriteSidecar(path, sidecar); err != nil {
		return nil, err
	}
	return sidecar, nil
}
