// Package layout defines the on-disk layout of a stash root.
//
// Storage layout:
//
//	root/
//	  <store>/
//	    <key>.jpg
//	    <key>.png
//	    <key>.mp4
//	    <key>.mp3
//	    <key>.txt   (structured objects and JSON values)
//
// There is no nesting below the store level.
package layout

import (
	"os"
	"path/filepath"
	"strings"
)

// Namespace is the directory created under the platform cache root.
const Namespace = "stash"

// Kind is the storage bucket of an entry. Each kind maps to exactly one
// filename extension.
type Kind uint8

const (
	KindJPEG Kind = iota + 1
	KindPNG
	KindVideo
	KindAudio
	KindObject
	KindValue
)

// Order is the fixed lookup priority used by reads and deletes.
var Order = []Kind{KindJPEG, KindPNG, KindVideo, KindAudio, KindObject, KindValue}

var extensions = map[Kind]string{
	KindJPEG:   ".jpg",
	KindPNG:    ".png",
	KindVideo:  ".mp4",
	KindAudio:  ".mp3",
	KindObject: ".txt",
	KindValue:  ".txt",
}

var names = map[Kind]string{
	KindJPEG:   "jpeg",
	KindPNG:    "png",
	KindVideo:  "video",
	KindAudio:  "audio",
	KindObject: "object",
	KindValue:  "value",
}

// Ext returns the filename extension of k, including the leading dot.
func (k Kind) Ext() string { return extensions[k] }

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	_, ok := extensions[k]
	return ok
}

func (k Kind) String() string {
	if n, ok := names[k]; ok {
		return n
	}
	return "unknown"
}

// ParseKind maps a kind name (as returned by String) back to a Kind.
func ParseKind(s string) (Kind, bool) {
	s = strings.ToLower(s)
	for k, n := range names {
		if n == s {
			return k, true
		}
	}
	return 0, false
}

// StoreDir returns the directory of a store under root.
func StoreDir(root, store string) string {
	return filepath.Join(root, store)
}

// Resolve returns the file path of (key, kind) in store. Equal inputs always
// give equal paths, and kinds with different extensions never collide.
func Resolve(root, store, key string, kind Kind) string {
	return filepath.Join(root, store, key+kind.Ext())
}

// Candidates returns the distinct paths a key may live at, in lookup order.
// When first is a valid kind it is tried before the fixed order.
func Candidates(root, store, key string, first Kind) []string {
	order := Order
	if first.Valid() {
		order = append([]Kind{first}, Order...)
	}

	seen := make(map[string]struct{}, len(order))
	paths := make([]string, 0, len(order))
	for _, k := range order {
		p := Resolve(root, store, key, k)
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		paths = append(paths, p)
	}
	return paths
}

// KindOf returns the kind a path's extension stands for. Text files report
// KindObject, the first text kind in lookup order.
func KindOf(path string) (Kind, bool) {
	ext := filepath.Ext(path)
	for _, k := range Order {
		if extensions[k] == ext {
			return k, true
		}
	}
	return 0, false
}

// Split parses a file name inside a store directory into key and kind.
func Split(name string) (key string, kind Kind, ok bool) {
	kind, ok = KindOf(name)
	if !ok {
		return "", 0, false
	}
	key = strings.TrimSuffix(filepath.Base(name), kind.Ext())
	return key, kind, key != ""
}

// DefaultRoot returns <platform cache dir>/stash, falling back to a relative
// directory when the platform has no cache dir.
func DefaultRoot() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, Namespace)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", Namespace)
	}
	return "." + Namespace
}
