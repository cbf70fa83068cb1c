package protocol

import "testing"

func TestDecoderBadStartCode(t *testing.T) {
	d := NewDecoder(0)
	header := []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00}
	_, status := d.Feed(header)
	if status != StatusCorrupt {
		t.Fatalf("status = %d, want StatusCorrupt", status)
	}
}

func TestDecoderBadCRC(t *testing.T) {
	buf, err := Serialize(Command{Code: 7, Arguments: []int32{9}})
	if err != nil {
		t.Fatal(err)
	}
	buf[len(buf)-6] ^= 0xFF // flip a CRC byte

	d := NewDecoder(0)
	n, status := d.Feed(buf[0:8])
	if status != StatusContinue {
		t.Fatalf("header status = %d", status)
	}
	_, status = d.Feed(buf[8 : 8+n])
	if status != StatusContinue {
		t.Fatalf("args status = %d", status)
	}
	_, status = d.Feed(buf[8+n : 8+n+6])
	if status != StatusCorrupt {
		t.Fatalf("footer status = %d, want StatusCorrupt", status)
	}
}

func TestDecoderOversizedArgCountRejected(t *testing.T) {
	d := NewDecoder(32) // tiny cap
	buf := []byte{0xEB, 0x90, 0x5B, 0x6A, 0x00, 0x01, 0xFF, 0xFF}
	_, status := d.Feed(buf)
	if status != StatusCorrupt {
		t.Fatalf("status = %d, want StatusCorrupt for oversized arg_count", status)
	}
}

func TestDecoderZeroArgumentFrameStillTransitions(t *testing.T) {
	buf, err := Serialize(Command{Code: 1})
	if err != nil {
		t.Fatal(err)
	}
	d := NewDecoder(0)
	n, status := d.Feed(buf[0:8])
	if status != StatusContinue || n != 0 {
		t.Fatalf("n=%d status=%d, want n=0 StatusContinue", n, status)
	}
	n, status = d.Feed(nil)
	if status != StatusContinue || n != 6 {
		t.Fatalf("n=%d status=%d, want n=6 StatusContinue", n, status)
	}
	_, status = d.Feed(buf[8:14])
	if status != StatusFrameReady {
		t.Fatalf("status = %d, want StatusFrameReady", status)
	}
}

func TestDecoderRestartAfterCorruption(t *testing.T) {
	valid, err := Serialize(Command{Code: 5, Arguments: []int32{1, 2}})
	if err != nil {
		t.Fatal(err)
	}

	d := NewDecoder(0)
	garbage := []byte{0, 0, 0, 0, 0, 0, 0, 0}
	if _, status := d.Feed(garbage); status != StatusCorrupt {
		t.Fatalf("expected corruption on garbage header")
	}
	d.Restart()

	// Feed the valid frame through the same, restarted decoder.
	n, status := d.Feed(valid[0:8])
	if status != StatusContinue || n != 8 {
		t.Fatalf("header after restart: n=%d status=%d", n, status)
	}
	if _, status = d.Feed(valid[8 : 8+n]); status != StatusContinue {
		t.Fatalf("args after restart: status=%d", status)
	}
	if _, status = d.Feed(valid[8+n : 8+n+6]); status != StatusFrameReady {
		t.Fatalf("decode after restart failed: status=%d", status)
	}
	if got := d.Command(); got.Code != 5 {
		t.Fatalf("Code = %d, want 5", got.Code)
	}
}
