package mirror

import (
	"bytes"
	"testing"
)

func testKey() []byte {
	return bytes.Repeat([]byte{0x42}, 32)
}

func TestJSONCodec_RoundTrip(t *testing.T) {
	codec := JSONCodec[profile]{}
	v := profile{Name: "ada", Age: 36}

	data, err := codec.Encode(v)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	back, err := codec.Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if back != v {
		t.Errorf("Round-trip mismatch: %+v != %+v", back, v)
	}
}

func TestSealedCodec_RoundTrip(t *testing.T) {
	codec, err := NewSealedCodec[profile](testKey())
	if err != nil {
		t.Fatalf("NewSealedCodec failed: %v", err)
	}

	v := profile{Name: "secret", Age: 1}
	data, err := codec.Encode(v)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	// The plaintext must not appear in the payload.
	if bytes.Contains(data, []byte("secret")) {
		t.Error("Sealed payload leaks plaintext")
	}

	back, err := codec.Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if back != v {
		t.Errorf("Round-trip mismatch: %+v != %+v", back, v)
	}
}

func TestSealedCodec_WrongKeyFails(t *testing.T) {
	codec, _ := NewSealedCodec[profile](testKey())
	data, err := codec.Encode(profile{Name: "secret"})
	if err != nil {
		t.Fatal(err)
	}

	other, _ := NewSealedCodec[profile](bytes.Repeat([]byte{0x13}, 32))
	if _, err := other.Decode(data); err == nil {
		t.Error("Expected decode failure with wrong key")
	}
}

func TestSealedCodec_RejectsBadKeySize(t *testing.T) {
	if _, err := NewSealedCodec[profile]([]byte("short")); err == nil {
		t.Error("Expected error for short key")
	}
}

func TestMirror_SealedCodecDropsUndecodable(t *testing.T) {
	c := newFakeConduit()
	codec, _ := NewSealedCodec[profile](testKey())
	m := New[profile]("Credentials", c, codec)
	waitReady(t, m)

	good, _ := codec.Encode(profile{Name: "alan"})
	c.push("Credentials", good)
	// Sealed with a different key: drops, keeps previous value.
	other, _ := NewSealedCodec[profile](bytes.Repeat([]byte{0x13}, 32))
	bad, _ := other.Encode(profile{Name: "mallory"})
	c.push("Credentials", bad)

	if v, ok := m.Value(); !ok || v.Name != "alan" {
		t.Errorf("Expected previous value retained, got %+v present=%v", v, ok)
	}
}
