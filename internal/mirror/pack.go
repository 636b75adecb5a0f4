package mirror

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"path/filepath"
	"sort"
)

const (
	LayerMinSize = 2 * 1024 * 1024  // 2MB minimum before combining
	LayerSoftMax = 10 * 1024 * 1024 // 10MB soft maximum
	maxNameLen   = 1<<16 - 1
)

// GroupByExt splits entries by file extension so each kind tends to land
// in its own layer.
func GroupByExt(entries map[string][]byte) map[string]map[string][]byte {
	result := make(map[string]map[string][]byte)
	for name, data := range entries {
		ext := filepath.Ext(name)
		if result[ext] == nil {
			result[ext] = make(map[string][]byte)
		}
		result[ext][name] = data
	}
	return result
}

// GroupSizes returns the total payload size of each group.
func GroupSizes(groups map[string]map[string][]byte) map[string]int64 {
	result := make(map[string]int64, len(groups))
	for group, entries := range groups {
		var total int64
		for _, data := range entries {
			total += int64(len(data))
		}
		result[group] = total
	}
	return result
}

// BuildLayerPlan packs groups, in name order, into layers of up to
// LayerSoftMax bytes. A layer under LayerMinSize may take one more group as
// long as it stays below twice the soft maximum.
func BuildLayerPlan(groupSizes map[string]int64) [][]string {
	groups := make([]string, 0, len(groupSizes))
	for g := range groupSizes {
		groups = append(groups, g)
	}
	sort.Strings(groups)

	var layers [][]string
	var current []string
	var size int64

	for _, group := range groups {
		groupSize := groupSizes[group]

		if len(current) == 0 {
			current = append(current, group)
			size = groupSize
			continue
		}

		newSize := size + groupSize
		if newSize <= LayerSoftMax || (size < LayerMinSize && newSize <= 2*LayerSoftMax) {
			current = append(current, group)
			size = newSize
			continue
		}
		layers = append(layers, current)
		current = []string{group}
		size = groupSize
	}

	if len(current) > 0 {
		layers = append(layers, current)
	}
	return layers
}

// CollectGroups merges the entries of the named groups.
func CollectGroups(names []string, groups map[string]map[string][]byte) map[string][]byte {
	result := make(map[string][]byte)
	for _, g := range names {
		for name, data := range groups[g] {
			result[name] = data
		}
	}
	return result
}

// PackLayer encodes entries in name order as
// [name length 2B][name][data length 8B][data]...
func PackLayer(entries map[string][]byte) ([]byte, error) {
	names := make([]string, 0, len(entries))
	for n := range entries {
		names = append(names, n)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	var lenBuf [8]byte
	for _, name := range names {
		if len(name) == 0 || len(name) > maxNameLen {
			return nil, fmt.Errorf("entry name %q: invalid length", name)
		}
		data := entries[name]

		binary.BigEndian.PutUint16(lenBuf[:2], uint16(len(name)))
		buf.Write(lenBuf[:2])
		buf.WriteString(name)

		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(data)))
		buf.Write(lenBuf[:])
		buf.Write(data)
	}
	return buf.Bytes(), nil
}

// UnpackLayer reverses PackLayer.
func UnpackLayer(data []byte) (map[string][]byte, error) {
	result := make(map[string][]byte)
	r := bytes.NewReader(data)

	for r.Len() > 0 {
		var nameLen uint16
		if err := binary.Read(r, binary.BigEndian, &nameLen); err != nil {
			return nil, fmt.Errorf("read name length: %w", err)
		}
		name := make([]byte, nameLen)
		if _, err := io.ReadFull(r, name); err != nil {
			return nil, fmt.Errorf("read name: %w", err)
		}

		var length uint64
		if err := binary.Read(r, binary.BigEndian, &length); err != nil {
			return nil, fmt.Errorf("read length: %w", err)
		}
		if length > uint64(r.Len()) {
			return nil, fmt.Errorf("entry %s: length %d exceeds layer", name, length)
		}
		entry := make([]byte, length)
		if _, err := io.ReadFull(r, entry); err != nil {
			return nil, fmt.Errorf("read data: %w", err)
		}
		result[string(name)] = entry
	}
	return result, nil
}
