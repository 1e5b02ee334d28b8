package mathx

import (
	"testing"
	"time"
)

func TestClamp(t *testing.T) {
	if Clamp(5, 0, 3) != 3 || Clamp(-1, 0, 3) != 0 || Clamp(2, 3, 0) != 2 {
		t.Fatal("int clamp")
	}
	if Clamp(time.Second, 0, 100*time.Millisecond) != 100*time.Millisecond {
		t.Fatal("duration clamp")
	}
}

func TestBetween(t *testing.T) {
	if !Between(uint8(3), 0, 15) || Between(uint8(16), 0, 15) || !Between(2, 3, 1) {
		t.Fatal("between")
	}
}
