package capture

import (
	"sync"
	"testing"
)

func TestArtifactReleaseZeroesBuffer(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5}
	art := NewArtifact(data, "audio/wav")

	art.Release()

	if !art.Released() {
		t.Fatal("artifact should report released")
	}
	for i, b := range data {
		if b != 0 {
			t.Fatalf("byte %d not zeroed: %d", i, b)
		}
	}
	if art.Bytes() != nil {
		t.Fatal("released artifact should hold no data")
	}
}

func TestArtifactReleaseIsIdempotent(t *testing.T) {
	data := []byte{9, 9, 9}
	art := NewArtifact(data, "audio/wav")

	art.Release()
	art.Release()

	if !art.Released() {
		t.Fatal("artifact should report released")
	}
}

func TestArtifactReleaseConcurrent(t *testing.T) {
	data := make([]byte, 1024)
	for i := range data {
		data[i] = byte(i)
	}
	art := NewArtifact(data, "audio/wav")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			art.Release()
		}()
	}
	wg.Wait()

	for i, b := range data {
		if b != 0 {
			t.Fatalf("byte %d not zeroed after concurrent release: %d", i, b)
		}
	}
}

func TestArtifactDefaultsContentType(t *testing.T) {
	art := NewArtifact([]byte{1}, "")
	if art.ContentType() != "application/octet-stream" {
		t.Fatalf("unexpected content type %q", art.ContentType())
	}
}
