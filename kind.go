package stash

import "github.com/aweris/stash/internal/layout"

// Kind is the storage bucket of an entry; it selects the file extension.
// Re-exported from internal/layout.
type Kind = layout.Kind

const (
	KindJPEG   = layout.KindJPEG   // image, .jpg
	KindPNG    = layout.KindPNG    // image, .png
	KindVideo  = layout.KindVideo  // .mp4
	KindAudio  = layout.KindAudio  // .mp3
	KindObject = layout.KindObject // structured object, .txt
	KindValue  = layout.KindValue  // JSON scalar or array, .txt
)

// ParseKind maps a kind name such as "png" or "object" to a Kind.
func ParseKind(s string) (Kind, bool) { return layout.ParseKind(s) }

// DefaultRoot is the root used when none is configured:
// <user cache dir>/stash.
func DefaultRoot() string { return layout.DefaultRoot() }
