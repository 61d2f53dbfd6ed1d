package session

import "testing"

// FuzzSessionDecode exercises the binary session decoder with arbitrary inputs.
// Goal: no panics, graceful error handling, stable re-encoding.
func FuzzSessionDecode(f *testing.F) {
	sess := &Session{
		UserID:      "user1",
		Role:        "organizer",
		State:       "Lagos",
		TokenID:     "0b0f8a52-8f5b-4a8e-9a0c-1c9e3c1b2d3e",
		RefreshHash: HashRefreshToken("token"),
		CreatedAt:   1700000000,
		ExpiresAt:   1702592000,
	}
	encoded, err := Encode(sess)
	if err == nil {
		f.Add(encoded)
	}

	f.Add([]byte{})
	f.Add([]byte{0})
	f.Add([]byte{1})
	f.Add([]byte{255, 255, 255})

	if len(encoded) > 10 {
		f.Add(encoded[:10])
	}
	if len(encoded) > 30 {
		f.Add(encoded[:30])
	}

	f.Fuzz(func(t *testing.T, data []byte) {
		s, err := Decode(data)
		if err != nil {
			return
		}
		if s == nil {
			t.Fatal("Decode returned nil session without error")
		}
		again, err := Encode(s)
		if err != nil {
			t.Fatalf("Encode after successful Decode failed: %v", err)
		}
		if string(again) != string(data) {
			t.Fatal("decode/encode is not stable")
		}
	})
}
