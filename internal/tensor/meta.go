package tensor

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Meta is free-form per-sample metadata.
type Meta struct {
	SourceInfo string   `msgpack:"source_info" yaml:"source_info"`
	Tags       []string `msgpack:"tags,omitempty" yaml:"tags,omitempty"`
	SkipSample bool     `msgpack:"skip_sample,omitempty" yaml:"skip_sample,omitempty"`
}

// Clone returns a deep copy.
func (m Meta) Clone() Meta {
	c := m
	if m.Tags != nil {
		c.Tags = append([]string(nil), m.Tags...)
	}
	return c
}

// MetaTable is the per-sample metadata side-table of a flat block.
type MetaTable []Meta

// Marshal encodes the table with msgpack so readers outside the process can
// observe the metadata that accompanies a block.
func (t MetaTable) Marshal() ([]byte, error) {
	data, err := msgpack.Marshal([]Meta(t))
	if err != nil {
		return nil, fmt.Errorf("encode meta table: %w", err)
	}
	return data, nil
}

// UnmarshalMetaTable decodes a table produced by MetaTable.Marshal.
func UnmarshalMetaTable(data []byte) (MetaTable, error) {
	var t []Meta
	if err := msgpack.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode meta table: %w", err)
	}
	return MetaTable(t), nil
}
