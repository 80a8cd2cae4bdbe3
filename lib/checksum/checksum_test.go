// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package checksum

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCompute(t *testing.T) {
	data := []byte("The quick brown fox jumps over the lazy dog")
	tests := []struct {
		algorithm Algorithm
		want      Digest
	}{
		{MD5, "9e107d9d372bb6826bd81d3542a419d6"},
		{SHA256, "d7a8fbb307d7809469ca9abcb0082e4f8d5651e46d3cdb762d02d0bf37c9e592"},
		{BLAKE3, "2f1514181aadccd913abd94cfa592701a5686ab23f8df1dff1b74710febc6d4a"},
	}
	for _, tt := range tests {
		t.Run(string(tt.algorithm), func(t *testing.T) {
			got, err := Compute(tt.algorithm, data)
			if err != nil {
				t.Fatalf("Compute failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Compute(%s) = %s, want %s", tt.algorithm, got, tt.want)
			}
		})
	}
}

func TestComputeUnknownAlgorithm(t *testing.T) {
	if _, err := Compute("crc32", nil); err == nil {
		t.Error("Compute with an unknown algorithm should fail")
	}
}

func TestParseAlgorithm(t *testing.T) {
	for input, want := range map[string]Algorithm{"": MD5, "MD5": MD5, "sha256": SHA256, " blake3 ": BLAKE3} {
		got, err := ParseAlgorithm(input)
		if err != nil || got != want {
			t.Errorf("ParseAlgorithm(%q) = %q, %v; want %q", input, got, err, want)
		}
	}
	if _, err := ParseAlgorithm("sha1"); err == nil {
		t.Error("ParseAlgorithm(\"sha1\") should fail")
	}
}

func writeContainer(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "archive.zip")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func TestGuardVerifies(t *testing.T) {
	data := []byte("container bytes")
	path := writeContainer(t, data)

	for _, algorithm := range Algorithms() {
		t.Run(string(algorithm), func(t *testing.T) {
			sidecar, err := Guard(algorithm, path, data, true)
			if err != nil {
				t.Fatalf("Guard failed: %v", err)
			}
			if sidecar.Verification == nil || !*sidecar.Verification {
				t.Fatalf("Verification = %v, want true", sidecar.Verification)
			}

			loaded, err := ReadSidecar(path, algorithm)
			if err != nil {
				t.Fatalf("ReadSidecar failed: %v", err)
			}
			if loaded.Digest != sidecar.Digest || loaded.Verification == nil || !*loaded.Verification {
				t.Errorf("ReadSidecar = %+v, want digest %s verified", loaded, sidecar.Digest)
			}
		})
	}
}

func TestGuardDetectsMismatch(t *testing.T) {
	data := []byte("container bytes")
	onDisk := []byte("container bytes")
	onDisk[3] ^= 0xff
	path := writeContainer(t, onDisk)

	sidecar, err := Guard(MD5, path, data, true)
	if err != nil {
		t.Fatalf("Guard failed: %v", err)
	}
	if sidecar.Verification == nil || *sidecar.Verification {
		t.Fatalf("Verification = %v, want false", sidecar.Verification)
	}
}

func TestGuardWithoutVerification(t *testing.T) {
	data := []byte("abc")
	path := writeContainer(t, data)

	if _, err := Guard(MD5, path, data, false); err != nil {
		t.Fatalf("Guard failed: %v", err)
	}
	content, err := os.ReadFile(SidecarPath(path, MD5))
	if err != nil {
		t.Fatalf("reading sidecar failed: %v", err)
	}
	want := "{\n    \"md5\": \"900150983cd24fb0d6963f7d28e17f72\"\n}"
	if string(content) != want {
		t.Errorf("sidecar =\n%s\nwant\n%s", content, want)
	}
}

func TestSidecarFormat(t *testing.T) {
	verified := true
	data, err := (&Sidecar{Algorithm: MD5, Digest: "900150983cd24fb0d6963f7d28e17f72", Verification: &verified}).Marshal()
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	want := "{\n    \"md5\": \"900150983cd24fb0d6963f7d28e17f72\",\n    \"verification\": true\n}"
	if string(data) != want {
		t.Errorf("Marshal =\n%s\nwant\n%s", data, want)
	}
}

func TestSidecarPath(t *testing.T) {
	if got := SidecarPath("/data/out.zip", MD5); got != "/data/out.zip.md5.json" {
		t.Errorf("SidecarPath = %q", got)
	}
	if got := SidecarPath("out.zip", BLAKE3); got != "out.zip.blake3.json" {
		t.Errorf("SidecarPath = %q", got)
	}
}

func TestVerifyFlippedByte(t *testing.T) {
	data := []byte("some container payload")
	path := writeContainer(t, data)
	digest, err := Compute(SHA256, data)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	if ok, err := Verify(SHA256, path, digest); err != nil || !ok {
		t.Fatalf("Verify of untouched file = %v, %v; want true", ok, err)
	}

	data[0] ^= 1
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if ok, err := Verify(SHA256, path, digest); err != nil || ok {
		t.Errorf("Verify after flipping a byte = %v, %v; want false", ok, err)
	}
}

func TestReadSidecarErrors(t *testing.T) {
	path := writeContainer(t, []byte("x"))
	if _, err := ReadSidecar(path, MD5); !os.IsNotExist(err) {
		t.Errorf("ReadSidecar without sidecar error = %v, want not-exist", err)
	}
	if err := os.WriteFile(SidecarPath(path, MD5), []byte(`{"sha256": "00"}`), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := ReadSidecar(path, MD5); err == nil {
		t.Error("ReadSidecar with the wrong key should fail")
	}
}
