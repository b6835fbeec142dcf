// Package swift implements a structural parser and a set of structural
// transformations for the SWIFT MT message family. The parser is not a
// validator: it understands blocks and tagged fields well enough to rewrite
// them and round-trips everything it does not touch.
package swift

import (
	"fmt"
	"sort"
	"strings"
)

// Field is one `:tag:value` entry of the text block. Values may span multiple
// lines; continuation lines are kept verbatim.
type Field struct {
	Tag   string
	Value string
}

// Message is a parsed MT message: the raw contents of blocks 1, 2, 3 and 5
// plus the ordered field list of block 4. Repeated tags are preserved.
type Message struct {
	blocks    map[int]string
	hasBlock4 bool
	Fields    []Field
}

// Parse splits raw into `{n:content}` blocks. Blocks 3 and 5 may contain
// nested sub-blocks; block 4 is parsed into fields terminated by `-}`.
func Parse(raw string) (*Message, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("swift: empty message")
	}
	msg := &Message{blocks: map[int]string{}}
	i := 0
	for i < len(raw) {
		if raw[i] != '{' {
			return nil, fmt.Errorf("swift: expected '{' at offset %d", i)
		}
		colon := strings.IndexByte(raw[i:], ':')
		if colon < 0 {
			return nil, fmt.Errorf("swift: malformed block header at offset %d", i)
		}
		num := 0
		header := raw[i+1 : i+colon]
		if _, err := fmt.Sscanf(header, "%d", &num); err != nil || num < 1 || num > 5 || fmt.Sprintf("%d", num) != header {
			return nil, fmt.Errorf("swift: invalid block number %q", header)
		}
		start := i + colon + 1
		end, err := matchBrace(raw, i)
		if err != nil {
			return nil, err
		}
		content := raw[start:end]
		if num == 4 {
			fields, err := parseFields(content)
			if err != nil {
				return nil, err
			}
			msg.Fields = fields
			msg.hasBlock4 = true
		} else {
			msg.blocks[num] = content
		}
		i = end + 1
	}
	return msg, nil
}

// matchBrace returns the index of the '}' closing the '{' at open, honoring
// nested braces.
func matchBrace(s string, open int) (int, error) {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}
	return 0, fmt.Errorf("swift: unterminated block at offset %d", open)
}

// parseFields splits block-4 content into ordered fields. A line starting
// with ':' opens a new field; other lines continue the current value. The
// trailing '-' terminator line is dropped.
func parseFields(content string) ([]Field, error) {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.TrimSuffix(strings.TrimRight(content, "\n"), "-")
	content = strings.TrimSuffix(content, "\n")
	content = strings.TrimPrefix(content, "\n")
	var fields []Field
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(line, ":") {
			rest := line[1:]
			sep := strings.IndexByte(rest, ':')
			if sep <= 0 {
				return nil, fmt.Errorf("swift: malformed field line %q", line)
			}
			fields = append(fields, Field{Tag: rest[:sep], Value: rest[sep+1:]})
			continue
		}
		if line == "" && len(fields) == 0 {
			continue
		}
		if len(fields) == 0 {
			return nil, fmt.Errorf("swift: text before first field: %q", line)
		}
		last := &fields[len(fields)-1]
		last.Value += "\n" + line
	}
	return fields, nil
}

// Type returns the three-digit message type from block 2 ("103", "202",
// "940"), or "" when block 2 is absent or too short. The leading I/O
// direction indicator is skipped when present.
func (m *Message) Type() string {
	b, ok := m.blocks[2]
	if !ok {
		return ""
	}
	if len(b) > 0 && (b[0] == 'I' || b[0] == 'O') {
		b = b[1:]
	}
	if len(b) < 3 {
		return ""
	}
	return b[:3]
}

// SetType rewrites the message type digits in block 2, preserving the
// direction indicator and the rest of the application header.
func (m *Message) SetType(t string) {
	b, ok := m.blocks[2]
	if !ok || len(t) != 3 {
		return
	}
	if len(b) > 0 && (b[0] == 'I' || b[0] == 'O') {
		if len(b) >= 4 {
			m.blocks[2] = string(b[0]) + t + b[4:]
		} else {
			m.blocks[2] = string(b[0]) + t
		}
		return
	}
	if len(b) >= 3 {
		m.blocks[2] = t + b[3:]
	} else {
		m.blocks[2] = t
	}
}

// Field returns the value of the first field with the given tag.
func (m *Message) Field(tag string) (string, bool) {
	for _, f := range m.Fields {
		if f.Tag == tag {
			return f.Value, true
		}
	}
	return "", false
}

// HasField reports whether any field carries the tag.
func (m *Message) HasField(tag string) bool {
	_, ok := m.Field(tag)
	return ok
}

// Block returns the raw content of a non-text block.
func (m *Message) Block(n int) (string, bool) {
	b, ok := m.blocks[n]
	return b, ok
}

// SetBlock replaces or adds a non-text block.
func (m *Message) SetBlock(n int, content string) {
	if n == 4 {
		return
	}
	m.blocks[n] = content
}

// Render serializes the message back to wire form, blocks in ascending
// number order, block 4 terminated by `-}`.
func (m *Message) Render() string {
	nums := make([]int, 0, len(m.blocks)+1)
	for n := range m.blocks {
		nums = append(nums, n)
	}
	if m.hasBlock4 {
		nums = append(nums, 4)
	}
	sort.Ints(nums)

	var sb strings.Builder
	for _, n := range nums {
		if n != 4 {
			fmt.Fprintf(&sb, "{%d:%s}", n, m.blocks[n])
			continue
		}
		sb.WriteString("{4:\n")
		for _, f := range m.Fields {
			fmt.Fprintf(&sb, ":%s:%s\n", f.Tag, f.Value)
		}
		sb.WriteString("-}")
	}
	return sb.String()
}
