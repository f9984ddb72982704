package token

import (
	"crypto/sha256"
	"strings"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	rec := &Record{
		UserID:     "user-42",
		SecretHash: sha256.Sum256([]byte("secret")),
		IssuedAt:   1700000000,
		ExpiresAt:  1700604800,
	}

	data, err := Encode(rec)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.UserID != rec.UserID {
		t.Fatalf("UserID = %q", got.UserID)
	}
	if got.SecretHash != rec.SecretHash {
		t.Fatal("secret hash mismatch")
	}
	if got.IssuedAt != rec.IssuedAt || got.ExpiresAt != rec.ExpiresAt {
		t.Fatalf("timestamps = %d/%d", got.IssuedAt, got.ExpiresAt)
	}
}

func TestEncodeRejectsBadUserID(t *testing.T) {
	if _, err := Encode(&Record{}); err == nil {
		t.Fatal("empty user id accepted")
	}
	if _, err := Encode(&Record{UserID: strings.Repeat("x", 256)}); err == nil {
		t.Fatal("oversized user id accepted")
	}
}

func TestDecodeRejectsDamagedBlobs(t *testing.T) {
	rec := &Record{
		UserID:     "user-1",
		SecretHash: sha256.Sum256([]byte("s")),
		IssuedAt:   1,
		ExpiresAt:  2,
	}
	data, err := Encode(rec)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	cases := map[string][]byte{
		"empty":         {},
		"bad version":   append([]byte{9}, data[1:]...),
		"truncated":     data[:len(data)-4],
		"trailing junk": append(append([]byte{}, data...), 0xFF),
	}

	for name, blob := range cases {
		if _, err := Decode(blob); err == nil {
			t.Fatalf("%s: damaged blob accepted", name)
		}
	}
}

func FuzzDecode(f *testing.F) {
	rec := &Record{
		UserID:     "user-1",
		SecretHash: sha256.Sum256([]byte("s")),
		IssuedAt:   1,
		ExpiresAt:  2,
	}
	valid, err := Encode(rec)
	if err != nil {
		f.Fatalf("Encode: %v", err)
	}
	f.Add(valid)
	f.Add([]byte{})
	f.Add([]byte{1, 0})

	f.Fuzz(func(t *testing.T, data []byte) {
		got, err := Decode(data)
		if err == nil && got.UserID == "" {
			t.Fatal("decoded record without user id")
		}
	})
}
