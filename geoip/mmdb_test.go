// SPDX-License-Identifier: GPL-3.0-or-later

package geoip

import (
	"bytes"
	"encoding/binary"
	"net/netip"
	"sort"
)

// mmdbWriter builds minimal IPv4-only MaxMind DB files for tests.
type mmdbWriter struct {
	root    *mmdbNode
	data    bytes.Buffer
	dbType  string
	corrupt bool
}

type mmdbNode struct {
	child  [2]*mmdbNode
	offset [2]int // data offset plus one, zero means empty
}

func newMMDBWriter(dbType string) *mmdbWriter {
	return &mmdbWriter{root: &mmdbNode{}, dbType: dbType}
}

// insert maps a non-overlapping IPv4 prefix of at least one bit to value.
func (w *mmdbWriter) insert(prefix string, value any) {
	pfx := netip.MustParsePrefix(prefix)
	ip := pfx.Addr().As4()
	offset := w.data.Len()
	mmdbEncode(&w.data, value)
	node := w.root
	for i := 0; i < pfx.Bits(); i++ {
		bit := (ip[i/8] >> (7 - i%8)) & 1
		if i == pfx.Bits()-1 {
			node.offset[bit] = offset + 1
			return
		}
		if node.child[bit] == nil {
			node.child[bit] = &mmdbNode{}
		}
		node = node.child[bit]
	}
}

func (w *mmdbWriter) bytes() []byte {
	var nodes []*mmdbNode
	ids := map[*mmdbNode]uint32{}
	var walk func(n *mmdbNode)
	walk = func(n *mmdbNode) {
		ids[n] = uint32(len(nodes))
		nodes = append(nodes, n)
		for _, c := range n.child {
			if c != nil {
				walk(c)
			}
		}
	}
	walk(w.root)
	count := uint32(len(nodes))

	var out bytes.Buffer
	for _, n := range nodes {
		for side := 0; side < 2; side++ {
			record := count
			switch {
			case n.child[side] != nil:
				record = ids[n.child[side]]
			case n.offset[side] > 0 && w.corrupt:
				record = 0xffffff
			case n.offset[side] > 0:
				record = count + 16 + uint32(n.offset[side]-1)
			}
			out.Write([]byte{byte(record >> 16), byte(record >> 8), byte(record)})
		}
	}
	out.Write(make([]byte, 16))
	out.Write(w.data.Bytes())
	out.WriteString("\xab\xcd\xefMaxMind.com")
	mmdbEncode(&out, map[string]any{
		"binary_format_major_version": uint16(2),
		"binary_format_minor_version": uint16(0),
		"build_epoch":                 uint64(1700000000),
		"database_type":               w.dbType,
		"description":                 map[string]any{"en": "test database"},
		"ip_version":                  uint16(4),
		"languages":                   []any{"en", "ru"},
		"node_count":                  count,
		"record_size":                 uint16(24),
	})
	return out.Bytes()
}

// mmdbEncode writes value using the MaxMind DB data section encoding.
func mmdbEncode(buf *bytes.Buffer, value any) {
	switch v := value.(type) {
	case string:
		mmdbControl(buf, 2, len(v))
		buf.WriteString(v)
	case uint16:
		mmdbUint(buf, 5, uint64(v))
	case uint32:
		mmdbUint(buf, 6, uint64(v))
	case uint64:
		mmdbUint(buf, 9, v)
	case []any:
		mmdbControl(buf, 11, len(v))
		for _, e := range v {
			mmdbEncode(buf, e)
		}
	case map[string]string:
		m := make(map[string]any, len(v))
		for key, e := range v {
			m[key] = e
		}
		mmdbEncode(buf, m)
	case map[string]any:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		mmdbControl(buf, 7, len(keys))
		for _, key := range keys {
			mmdbEncode(buf, key)
			mmdbEncode(buf, v[key])
		}
	default:
		panic("mmdbEncode: unsupported type")
	}
}

func mmdbUint(buf *bytes.Buffer, kind int, v uint64) {
	var raw [8]byte
	binary.BigEndian.PutUint64(raw[:], v)
	payload := bytes.TrimLeft(raw[:], "\x00")
	mmdbControl(buf, kind, len(payload))
	buf.Write(payload)
}

func mmdbControl(buf *bytes.Buffer, kind, size int) {
	if size >= 285 {
		panic("mmdbControl: size too large")
	}
	low := size
	if size >= 29 {
		low = 29
	}
	if kind <= 7 {
		buf.WriteByte(byte(kind<<5 | low))
	} else {
		buf.WriteByte(byte(low))
		buf.WriteByte(byte(kind - 7))
	}
	if size >= 29 {
		buf.WriteByte(byte(size - 29))
	}
}
