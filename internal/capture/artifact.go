package capture

import "sync"

// Artifact holds one uploaded audio payload and its declared content type.
// The raw bytes are sensitive voice data; Release zeroes them and must be
// called on every request path. Release is idempotent so a deferred call
// and an eager call can coexist.
type Artifact struct {
	data        []byte
	contentType string
	once        sync.Once
	released    bool
}

func NewArtifact(data []byte, contentType string) *Artifact {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &Artifact{data: data, contentType: contentType}
}

func (a *Artifact) Bytes() []byte       { return a.data }
func (a *Artifact) ContentType() string { return a.contentType }
func (a *Artifact) Size() int           { return len(a.data) }

// Release zeroes the audio buffer exactly once and drops the reference.
func (a *Artifact) Release() {
	a.once.Do(func() {
		for i := range a.data {
			a.data[i] = 0
		}
		a.data = nil
		a.released = true
	})
}

// Released reports whether the buffer has been zeroed.
func (a *Artifact) Released() bool { return a.released }
