package provider

import (
	"encoding/json"
	"io"
)

const TypeMemory = "hexcore.provider.memory"

// Memory is a backend over a byte slice. It supports everything a backend can.
type Memory struct {
	name string
	data []byte
}

func NewMemory(name string, data []byte) *Memory {
	return &Memory{name: name, data: data}
}

func (m *Memory) Open() error  { return nil }
func (m *Memory) Close() error { return nil }

func (m *Memory) Size() uint64 {
	return uint64(len(m.data))
}

func (m *Memory) Capabilities() Capabilities {
	return Readable | Writable | Resizable | Savable
}

func (m *Memory) TypeName() string { return TypeMemory }

func (m *Memory) Name() string {
	if m.name == "" {
		return "memory"
	}
	return m.name
}

// Bytes returns the backing slice.
func (m *Memory) Bytes() []byte {
	return m.data
}

func (m *Memory) ReadAt(b []byte, off int64) (int, error) {
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(b, m.data[off:])
	if n < len(b) {
		return n, io.EOF
	}
	return n, nil
}

func (m *Memory) WriteAt(b []byte, off int64) (int, error) {
	if end := off + int64(len(b)); end > int64(len(m.data)) {
		m.Truncate(uint64(end))
	}
	return copy(m.data[off:], b), nil
}

func (m *Memory) Truncate(size uint64) error {
	if size <= uint64(len(m.data)) {
		m.data = m.data[:size]
		return nil
	}
	if size <= uint64(cap(m.data)) {
		old := len(m.data)
		m.data = m.data[:size]
		clear(m.data[old:])
		return nil
	}
	d := make([]byte, size)
	copy(d, m.data)
	m.data = d
	return nil
}

type memoryConfig struct {
	Name string   `json:"name"`
	Data HexBytes `json:"data"`
}

func (m *Memory) MarshalConfig() ([]byte, error) {
	return json.Marshal(memoryConfig{Name: m.name, Data: m.data})
}

func (m *Memory) UnmarshalConfig(data []byte) error {
	var c memoryConfig
	if err := json.Unmarshal(data, &c); err != nil {
		return err
	}
	m.name, m.data = c.Name, c.Data
	return nil
}
