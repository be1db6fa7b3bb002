package video

import (
	"io"
	"os"
	"path/filepath"
	"testing"
)

func writeFixture(t *testing.T, frames ...string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "movie.Mjpeg")

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create fixture: %v", err)
	}
	defer f.Close()

	for _, frame := range frames {
		if _, err := f.WriteString(frameHeader(len(frame)) + frame); err != nil {
			t.Fatalf("write fixture frame: %v", err)
		}
	}
	return path
}

func frameHeader(n int) string {
	s := "00000"
	digits := []byte(s)
	for i := 0; n > 0; i++ {
		digits[len(digits)-1-i] = byte('0' + n%10)
		n /= 10
	}
	return string(digits)
}

func TestNextFrameReadsInOrder(t *testing.T) {
	t.Parallel()

	path := writeFixture(t, "one", "two", "three")
	src, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()

	for i, want := range []string{"one", "two", "three"} {
		payload, counter, err := src.NextFrame()
		if err != nil {
			t.Fatalf("NextFrame: %v", err)
		}
		if string(payload) != want {
			t.Errorf("frame %d = %q, want %q", i, payload, want)
		}
		if counter != uint64(i+1) {
			t.Errorf("counter = %d, want %d", counter, i+1)
		}
	}
}

func TestNextFrameLoops(t *testing.T) {
	t.Parallel()

	path := writeFixture(t, "only")
	src, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()

	for i := 0; i < 3; i++ {
		payload, counter, err := src.NextFrame()
		if err != nil {
			t.Fatalf("NextFrame iteration %d: %v", i, err)
		}
		if string(payload) != "only" {
			t.Errorf("iteration %d payload = %q, want %q", i, payload, "only")
		}
		if counter != uint64(i+1) {
			t.Errorf("iteration %d counter = %d, want %d", i, counter, i+1)
		}
	}
}

func TestOpenMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Open(filepath.Join(t.TempDir(), "missing.Mjpeg")); err == nil {
		t.Fatal("expected error opening a missing file")
	}
}

func TestNextFrameMalformedLength(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "bad.Mjpeg")
	if err := os.WriteFile(path, []byte("abcdehello"), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	src, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()

	if _, _, err := src.NextFrame(); err == nil {
		t.Fatal("expected error for a malformed length header")
	} else if err == io.EOF {
		t.Fatal("malformed header should not be reported as EOF")
	}
}
