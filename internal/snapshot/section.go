package snapshot

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
)

// section holds one snapshot payload, either as plain JSON or as a
// gzip-compressed, base64-encoded blob.
type section struct {
	raw        json.RawMessage
	compressed bool
}

// compressedSection is the wire form of a compressed section.
type compressedSection struct {
	Format string `json:"format"`
	Data   string `json:"data"`
}

func newSection(v interface{}, compress bool) (section, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return section{}, fmt.Errorf("marshal section: %w", err)
	}
	return section{raw: raw, compressed: compress}, nil
}

func (s section) MarshalJSON() ([]byte, error) {
	if !s.compressed {
		return s.raw, nil
	}
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(s.raw); err != nil {
		return nil, fmt.Errorf("compress section: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("compress section: %w", err)
	}
	return json.Marshal(compressedSection{
		Format: sectionEncoding,
		Data:   base64.StdEncoding.EncodeToString(buf.Bytes()),
	})
}

func (s *section) UnmarshalJSON(data []byte) error {
	var wrapped compressedSection
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Format == sectionEncoding {
		blob, err := base64.StdEncoding.DecodeString(wrapped.Data)
		if err != nil {
			return fmt.Errorf("decode section: %w", err)
		}
		gz, err := gzip.NewReader(bytes.NewReader(blob))
		if err != nil {
			return fmt.Errorf("decompress section: %w", err)
		}
		defer gz.Close()
		raw, err := io.ReadAll(gz)
		if err != nil {
			return fmt.Errorf("decompress section: %w", err)
		}
		s.raw = raw
		s.compressed = true
		return nil
	}
	s.raw = append(json.RawMessage(nil), data...)
	s.compressed = false
	return nil
}

// decode unmarshals the section payload into v.
func (s section) decode(v interface{}) error {
	if len(s.raw) == 0 {
		return nil
	}
	return json.Unmarshal(s.raw, v)
}
