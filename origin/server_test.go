package origin

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/esrtp/overlay/wire"
)

func writeVideo(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte("00003abc"), 0644); err != nil {
		t.Fatalf("write video fixture: %v", err)
	}
}

func TestVerifyFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeVideo(t, dir, "movie.Mjpeg")

	srv := NewServer(dir, 8554, nil)
	if !srv.VerifyFile("movie.Mjpeg") {
		t.Error("VerifyFile false for an existing file")
	}
	if srv.VerifyFile("missing.Mjpeg") {
		t.Error("VerifyFile true for a missing file")
	}
}

func TestGetOrCreateChannelReusesExisting(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeVideo(t, dir, "movie.Mjpeg")

	srv := NewServer(dir, 8554, nil)
	ch1, status := srv.GetOrCreateChannel(context.Background(), "movie.Mjpeg", nil)
	if status != wire.StatusSigOk {
		t.Fatalf("first GetOrCreateChannel status = %v, want Ok", status)
	}
	defer srv.TeardownChannel(context.Background(), ch1)

	ch2, status := srv.GetOrCreateChannel(context.Background(), "movie.Mjpeg", nil)
	if status != wire.StatusSigOk {
		t.Fatalf("second GetOrCreateChannel status = %v, want Ok", status)
	}
	if ch1 != ch2 {
		t.Fatal("GetOrCreateChannel returned a different channel for an already-open filename")
	}
}

func TestGetOrCreateChannelMissingFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	srv := NewServer(dir, 8554, nil)
	_, status := srv.GetOrCreateChannel(context.Background(), "missing.Mjpeg", nil)
	if status != wire.StatusSigFileNotFound {
		t.Fatalf("status = %v, want FileNotFound", status)
	}
}

func TestMetricReportsStreamingPort(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeVideo(t, dir, "movie.Mjpeg")

	srv := NewServer(dir, 9001, nil)
	m := srv.Metric("movie.Mjpeg")
	if m.StreamingPort != 9001 {
		t.Fatalf("StreamingPort = %d, want 9001", m.StreamingPort)
	}
	if !m.VideoFound {
		t.Error("VideoFound = false, want true")
	}
	if m.AlreadyStreaming {
		t.Error("AlreadyStreaming = true before any SETUP")
	}
	if m.NumberOfVideos != 1 {
		t.Fatalf("NumberOfVideos = %d, want 1", m.NumberOfVideos)
	}
}

func TestMetricAlreadyStreaming(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeVideo(t, dir, "movie.Mjpeg")

	srv := NewServer(dir, 8554, nil)
	ch, _ := srv.GetOrCreateChannel(context.Background(), "movie.Mjpeg", nil)
	defer srv.TeardownChannel(context.Background(), ch)

	m := srv.Metric("movie.Mjpeg")
	if !m.AlreadyStreaming {
		t.Error("AlreadyStreaming = false with an open channel")
	}
}
