package timex

import (
	"testing"
	"time"
)

func TestNowMs(t *testing.T) {
	before := time.Now().UnixMilli()
	got := NowMs()
	after := time.Now().UnixMilli()
	if got < before || got > after {
		t.Fatalf("NowMs = %d, want in [%d, %d]", got, before, after)
	}
}
