package stash

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/aweris/stash/internal/compression"
)

// Payload is a typed value that a Codec turns into bytes. The set of
// payloads is closed: Image, Video, Audio, Object and Value.
type Payload interface {
	Kind() Kind
	isPayload()
}

// ImageFormat selects the on-disk bucket of an image.
type ImageFormat uint8

const (
	JPEG ImageFormat = iota
	PNG
)

// Image is an already encoded image.
type Image struct {
	Format ImageFormat
	Data   []byte
}

// Video is mp4 content, given inline or as a file to copy from. Loaded
// videos carry both the content and the path of the cached file.
type Video struct {
	Data       []byte
	SourcePath string
}

// Audio is mp3 content, given inline or as a file to copy from.
type Audio struct {
	Data       []byte
	SourcePath string
}

// Object is a structured value stored as a JSON document. Loaded objects
// hold a json.RawMessage for the caller to unmarshal.
type Object struct {
	Value any
}

// Value is a JSON scalar or array.
type Value struct {
	Value any
}

func (p Image) Kind() Kind {
	if p.Format == PNG {
		return KindPNG
	}
	return KindJPEG
}
func (Video) Kind() Kind  { return KindVideo }
func (Audio) Kind() Kind  { return KindAudio }
func (Object) Kind() Kind { return KindObject }
func (Value) Kind() Kind  { return KindValue }

func (Image) isPayload()  {}
func (Video) isPayload()  {}
func (Audio) isPayload()  {}
func (Object) isPayload() {}
func (Value) isPayload()  {}

// Codec converts payloads to and from the bytes of an entry.
type Codec interface {
	// Encode returns the bytes of p and the kind to store them under.
	Encode(p Payload) ([]byte, Kind, error)
	// Decode rebuilds a payload from the bytes of an entry of kind.
	Decode(data []byte, kind Kind) (Payload, error)
}

// defaultCodec stores media verbatim and text payloads as JSON, optionally
// zstd-compressed. Values are wrapped in a one-element array so that any
// JSON value, including bare scalars, round-trips.
type defaultCodec struct {
	compressor *compression.Compressor
}

func (c *defaultCodec) Encode(p Payload) ([]byte, Kind, error) {
	var (
		data []byte
		err  error
	)
	switch p := p.(type) {
	case Image:
		if p.Format != JPEG && p.Format != PNG {
			return nil, 0, fmt.Errorf("image format %d: %w", p.Format, ErrUnsupported)
		}
		data = p.Data
	case Video:
		data, err = mediaBytes(p.Data, p.SourcePath)
	case Audio:
		data, err = mediaBytes(p.Data, p.SourcePath)
	case Object:
		data, err = marshalJSON(p.Value)
		data = c.compressor.Compress(data)
	case Value:
		data, err = marshalJSON([]any{p.Value})
		data = c.compressor.Compress(data)
	default:
		return nil, 0, fmt.Errorf("payload %T: %w", p, ErrUnsupported)
	}
	if err != nil {
		return nil, 0, err
	}
	if len(data) == 0 {
		return nil, 0, ErrNoData
	}
	return data, p.Kind(), nil
}

// Decode trusts kind for media and for explicitly requested text kinds.
// Text entries read without a requested kind arrive as KindObject through
// decodeText, which lets the content decide.
func (c *defaultCodec) Decode(data []byte, kind Kind) (Payload, error) {
	switch kind {
	case KindJPEG:
		return Image{Format: JPEG, Data: data}, nil
	case KindPNG:
		return Image{Format: PNG, Data: data}, nil
	case KindVideo:
		return Video{Data: data}, nil
	case KindAudio:
		return Audio{Data: data}, nil
	case KindObject, KindValue:
		plain, err := c.plainJSON(data)
		if err != nil {
			return nil, err
		}
		if kind == KindObject {
			return Object{Value: json.RawMessage(plain)}, nil
		}
		v, ok, err := unwrapValue(plain)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: not a wrapped value", ErrMalformed)
		}
		return Value{Value: v}, nil
	default:
		return nil, fmt.Errorf("kind %d: %w", kind, ErrUnsupported)
	}
}

// textSniffer is implemented by codecs that can tell text kinds apart by
// content alone.
type textSniffer interface {
	decodeText(data []byte) (Payload, error)
}

// decodeText decodes a text entry read without a requested kind: a
// one-element JSON array is a Value, anything else an Object.
func (c *defaultCodec) decodeText(data []byte) (Payload, error) {
	plain, err := c.plainJSON(data)
	if err != nil {
		return nil, err
	}
	if v, ok, err := unwrapValue(plain); err != nil {
		return nil, err
	} else if ok {
		return Value{Value: v}, nil
	}
	return Object{Value: json.RawMessage(plain)}, nil
}

func (c *defaultCodec) plainJSON(data []byte) ([]byte, error) {
	plain, err := c.compressor.Decompress(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if !json.Valid(plain) {
		return nil, fmt.Errorf("%w: not JSON", ErrMalformed)
	}
	return plain, nil
}

func unwrapValue(plain []byte) (any, bool, error) {
	var wrapped []json.RawMessage
	if err := json.Unmarshal(plain, &wrapped); err != nil || len(wrapped) != 1 {
		return nil, false, nil
	}
	var v any
	if err := json.Unmarshal(wrapped[0], &v); err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return v, true, nil
}

func (c *defaultCodec) Close() error {
	return c.compressor.Close()
}

func mediaBytes(data []byte, source string) ([]byte, error) {
	if len(data) > 0 || source == "" {
		return data, nil
	}
	b, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("read media %s: %w", source, err)
	}
	return b, nil
}

func marshalJSON(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		var unsupported *json.UnsupportedTypeError
		var unsupportedValue *json.UnsupportedValueError
		if errors.As(err, &unsupported) || errors.As(err, &unsupportedValue) {
			return nil, fmt.Errorf("%w: %w", ErrUnsupported, err)
		}
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return data, nil
}

// Save encodes p with the registry's codec and stores it under key.
func (s *Store) Save(key string, p Payload) (string, error) {
	if p == nil {
		return "", fmt.Errorf("save %s: %w", key, ErrUnsupported)
	}
	data, kind, err := s.reg.codec.Encode(p)
	if err != nil {
		return "", fmt.Errorf("save %s: %w", key, err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("save %s: %w", key, ErrNoData)
	}
	return s.Put(key, kind, data)
}

// Load reads the entry for key and decodes it with the registry's codec.
// Loaded media also carry the path of the cached file.
func (s *Store) Load(key string) (Payload, error) {
	return s.LoadKind(key, 0)
}

// LoadKind is Load with kind tried first and used to decode text entries.
func (s *Store) LoadKind(key string, kind Kind) (Payload, error) {
	entry, err := s.GetKind(key, kind)
	if err != nil {
		return nil, err
	}
	var p Payload
	sniffer, ok := s.reg.codec.(textSniffer)
	if ok && entry.Kind == KindObject && kind != KindObject {
		p, err = sniffer.decodeText(entry.Data)
	} else {
		p, err = s.reg.codec.Decode(entry.Data, entry.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	switch m := p.(type) {
	case Video:
		m.SourcePath = entry.Path
		p = m
	case Audio:
		m.SourcePath = entry.Path
		p = m
	}
	return p, nil
}
