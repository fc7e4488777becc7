// Package snapshot encodes table snapshots into a compact, checksummed
// binary form for archiving.
//
// The format is:
//   - 4 bytes: magic "MSNP"
//   - 1 byte: format version
//   - 8 bytes: murmur3 64-bit checksum of the payload (little-endian)
//   - remaining: snappy-compressed JSON payload
package snapshot

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/golang/snappy"
	"github.com/spaolacci/murmur3"

	molerrors "github.com/arkilian/molsystem/internal/errors"
	"github.com/arkilian/molsystem/pkg/types"
)

// Extension is the file extension of encoded snapshots.
const Extension = ".msnp"

const (
	formatVersion = 1
	headerSize    = 4 + 1 + 8
)

var magic = []byte("MSNP")

// Value tags.
const (
	tagNull  = "n"
	tagInt   = "i"
	tagFloat = "f"
	tagText  = "s"
	tagBlob  = "b"
	tagTime  = "d"
)

type payload struct {
	Table   string       `json:"table"`
	Columns []string     `json:"columns"`
	Rows    []payloadRow `json:"rows"`
}

type payloadRow struct {
	RowID  int64         `json:"rowid"`
	Values []taggedValue `json:"values"`
}

// taggedValue keeps the storage class of a value through JSON, which would
// otherwise merge integers into floats and blobs into strings.
type taggedValue struct {
	T string          `json:"t"`
	V json.RawMessage `json:"v,omitempty"`
}

// Encode serializes a snapshot.
func Encode(s *types.Snapshot) ([]byte, error) {
	if s == nil {
		return nil, molerrors.NewInternalError("snapshot: nil snapshot", nil)
	}
	p := payload{Table: s.Table, Columns: s.Columns, Rows: make([]payloadRow, len(s.Rows))}
	for i, row := range s.Rows {
		values := make([]taggedValue, len(row.Values))
		for j, v := range row.Values {
			tv, err := tag(v)
			if err != nil {
				return nil, molerrors.NewInternalError(
					fmt.Sprintf("snapshot: row %d column %d", row.RowID, j), err)
			}
			values[j] = tv
		}
		p.Rows[i] = payloadRow{RowID: row.RowID, Values: values}
	}

	raw, err := json.Marshal(p)
	if err != nil {
		return nil, molerrors.NewInternalError("snapshot: failed to marshal payload", err)
	}
	compressed := snappy.Encode(nil, raw)

	buf := make([]byte, headerSize+len(compressed))
	copy(buf[0:4], magic)
	buf[4] = formatVersion
	binary.LittleEndian.PutUint64(buf[5:13], murmur3.Sum64(compressed))
	copy(buf[headerSize:], compressed)
	return buf, nil
}

// Decode reconstructs a snapshot. Any damage to the data is reported as
// ErrCorruptSnapshot.
func Decode(data []byte) (*types.Snapshot, error) {
	if len(data) < headerSize {
		return nil, corrupt(fmt.Sprintf("expected at least %d bytes, got %d", headerSize, len(data)), nil)
	}
	if !bytes.Equal(data[0:4], magic) {
		return nil, corrupt("bad magic", nil)
	}
	if data[4] != formatVersion {
		return nil, corrupt(fmt.Sprintf("unsupported format version %d", data[4]), nil)
	}

	compressed := data[headerSize:]
	if sum := binary.LittleEndian.Uint64(data[5:13]); sum != murmur3.Sum64(compressed) {
		return nil, corrupt("checksum mismatch", nil)
	}

	raw, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, corrupt("snappy decompress failed", err)
	}
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, corrupt("invalid payload", err)
	}

	s := &types.Snapshot{Table: p.Table, Columns: p.Columns, Rows: make([]types.SnapshotRow, len(p.Rows))}
	for i, row := range p.Rows {
		if len(row.Values) != len(p.Columns) {
			return nil, corrupt(fmt.Sprintf("row %d has %d values for %d columns",
				row.RowID, len(row.Values), len(p.Columns)), nil)
		}
		values := make([]any, len(row.Values))
		for j, tv := range row.Values {
			v, err := untag(tv)
			if err != nil {
				return nil, corrupt(fmt.Sprintf("row %d column %s", row.RowID, p.Columns[j]), err)
			}
			values[j] = v
		}
		s.Rows[i] = types.SnapshotRow{RowID: row.RowID, Values: values}
	}
	return s, nil
}

func corrupt(msg string, cause error) error {
	return molerrors.NewArchiveError(molerrors.CodeCorruptSnapshot, "snapshot: "+msg, cause)
}

func tag(v any) (taggedValue, error) {
	var (
		t   string
		enc any
	)
	switch x := v.(type) {
	case nil:
		return taggedValue{T: tagNull}, nil
	case int64:
		t, enc = tagInt, x
	case int:
		t, enc = tagInt, int64(x)
	case int32:
		t, enc = tagInt, int64(x)
	case bool:
		t, enc = tagInt, 0
		if x {
			enc = 1
		}
	case float64:
		t, enc = tagFloat, formatFloat(x)
	case float32:
		t, enc = tagFloat, formatFloat(float64(x))
	case string:
		t, enc = tagText, x
	case []byte:
		t, enc = tagBlob, x
	case time.Time:
		t, enc = tagTime, x.Format(time.RFC3339Nano)
	default:
		return taggedValue{}, fmt.Errorf("unsupported value type %T", v)
	}
	raw, err := json.Marshal(enc)
	if err != nil {
		return taggedValue{}, err
	}
	return taggedValue{T: t, V: raw}, nil
}

// formatFloat writes floats as strings so that infinities survive JSON.
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func untag(tv taggedValue) (any, error) {
	switch tv.T {
	case tagNull:
		return nil, nil
	case tagInt:
		var n int64
		err := json.Unmarshal(tv.V, &n)
		return n, err
	case tagFloat:
		var s string
		if err := json.Unmarshal(tv.V, &s); err != nil {
			return nil, err
		}
		return strconv.ParseFloat(s, 64)
	case tagText:
		var s string
		err := json.Unmarshal(tv.V, &s)
		return s, err
	case tagBlob:
		var b []byte
		if err := json.Unmarshal(tv.V, &b); err != nil {
			return nil, err
		}
		if b == nil {
			b = []byte{}
		}
		return b, nil
	case tagTime:
		var s string
		if err := json.Unmarshal(tv.V, &s); err != nil {
			return nil, err
		}
		return time.Parse(time.RFC3339Nano, s)
	}
	return nil, fmt.Errorf("unknown value tag %q", tv.T)
}
