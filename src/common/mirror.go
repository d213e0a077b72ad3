package common

import (
	"fmt"
	"log"
	"os"
	"path"
	"time"
)

// LocalMirror writes best-effort copies of session assets to a timestamped
// folder on the kiosk disk. Every error here is logged and swallowed, the
// mirror must never block or fail the upload pipeline.
type LocalMirror struct {
	BaseDir string
}

func (m *LocalMirror) Enabled() bool {
	return m != nil && m.BaseDir != ""
}

// Save creates <base>/<timestamp>-<shortid>/ and writes the composite, each
// photo, and (when present) the animation into it. Returns the folder path
// for logging only.
func (m *LocalMirror) Save(sessionID string, composite []byte, photos [][]byte, animation []byte) string {
	if !m.Enabled() {
		return ""
	}
	short := sessionID
	if len(short) > 8 {
		short = short[:8]
	}
	dir := path.Join(m.BaseDir, fmt.Sprintf("%s-%s", time.Now().Format("20060102-150405"), short))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Printf("[mirror] Could not create directory %s: %s\n", dir, err.Error())
		return ""
	}
	writeMirrorFile(path.Join(dir, "composite.jpg"), composite)
	for i, p := range photos {
		if len(p) == 0 {
			continue
		}
		writeMirrorFile(path.Join(dir, fmt.Sprintf("photo-%d.jpg", i+1)), p)
	}
	if len(animation) > 0 {
		writeMirrorFile(path.Join(dir, "animation.gif"), animation)
	}
	return dir
}

// SaveAnimation adds the animation to an already-written session folder.
func (m *LocalMirror) SaveAnimation(dir string, animation []byte) {
	if dir == "" || len(animation) == 0 {
		return
	}
	writeMirrorFile(path.Join(dir, "animation.gif"), animation)
}

func writeMirrorFile(filepath string, data []byte) {
	if err := os.WriteFile(filepath, data, 0o644); err != nil {
		log.Printf("[mirror] Could not write %s: %s\n", filepath, err.Error())
	}
}
