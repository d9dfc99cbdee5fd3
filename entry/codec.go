package entry

import (
	"errors"
	"fmt"

	flatbuffers "github.com/google/flatbuffers/go"
)

// ErrCorruptRecord means a stored buffer could not be decoded into an Entry.
// Decode wraps it with the specific reason.
var ErrCorruptRecord = errors.New("corrupt record")

// Table slots of the record. New fields must be appended after the last
// slot so that records written earlier stay decodable.
const (
	slotCreateTimestamp = iota
	slotExpiryTimestamp
	slotData
	slotLang
	slotBurn
	slotEncrypted

	numSlots
)

// Encode serializes e into a FlatBuffers table. Scalars equal to their zero
// value are left out of the buffer, as FlatBuffers does for defaults.
func Encode(e Entry) []byte {
	b := flatbuffers.NewBuilder(len(e.Payload) + len(e.Lang) + 64)

	// Vectors and strings have to be written before the table that points
	// to them.
	data := b.CreateByteVector(e.Payload)
	lang := b.CreateString(e.Lang)

	b.StartObject(numSlots)
	b.PrependUint64Slot(slotCreateTimestamp, e.CreatedAt, 0)
	b.PrependUint64Slot(slotExpiryTimestamp, e.ExpiryAt, 0)
	b.PrependUOffsetTSlot(slotData, data, 0)
	b.PrependUOffsetTSlot(slotLang, lang, 0)
	b.PrependBoolSlot(slotBurn, e.Burn, false)
	b.PrependBoolSlot(slotEncrypted, e.Encrypted, false)
	b.Finish(b.EndObject())

	return b.FinishedBytes()
}

// Decode parses a buffer produced by Encode. Every offset is checked against
// the buffer bounds before it is followed, since the FlatBuffers runtime
// panics on malformed input. Slots the buffer doesn't contain take their
// default value, except for the required data and lang fields.
//
// The returned Entry doesn't alias buf.
func Decode(buf []byte) (Entry, error) {
	r, err := newReader(buf)
	if err != nil {
		return Entry{}, err
	}

	created, err := r.uint64Slot(slotCreateTimestamp)
	if err != nil {
		return Entry{}, err
	}
	expiry, err := r.uint64Slot(slotExpiryTimestamp)
	if err != nil {
		return Entry{}, err
	}
	data, err := r.vectorSlot(slotData, "data")
	if err != nil {
		return Entry{}, err
	}
	lang, err := r.vectorSlot(slotLang, "lang")
	if err != nil {
		return Entry{}, err
	}
	burn, err := r.boolSlot(slotBurn)
	if err != nil {
		return Entry{}, err
	}
	encrypted, err := r.boolSlot(slotEncrypted)
	if err != nil {
		return Entry{}, err
	}

	payload := make([]byte, len(data))
	copy(payload, data)

	return Entry{
		CreatedAt: created,
		ExpiryAt:  expiry,
		Payload:   payload,
		Lang:      string(lang),
		Burn:      burn,
		Encrypted: encrypted,
	}, nil
}

// corrupt builds an ErrCorruptRecord with a reason attached.
func corrupt(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %v", ErrCorruptRecord, fmt.Sprintf(format, args...))
}

// reader is a bounds-checked view of the root table of a record. Positions
// are kept as int so that offset arithmetic can't wrap around.
type reader struct {
	t       flatbuffers.Table
	size    int // length of the whole buffer
	table   int // position of the root table
	objSize int // inline size of the root table, per its vtable
	vtable  int
	vtSize  int
}

func newReader(buf []byte) (*reader, error) {
	size := len(buf)
	if size < flatbuffers.SizeUOffsetT {
		return nil, corrupt("buffer of %v bytes is too short to hold a root offset", size)
	}

	table := int(flatbuffers.GetUOffsetT(buf))
	if table+flatbuffers.SizeSOffsetT > size {
		return nil, corrupt("root table offset %v is out of range", table)
	}

	vtable := table - int(flatbuffers.GetSOffsetT(buf[table:]))
	if vtable < 0 || vtable+2*flatbuffers.SizeVOffsetT > size {
		return nil, corrupt("vtable position %v is out of range", vtable)
	}

	vtSize := int(flatbuffers.GetVOffsetT(buf[vtable:]))
	objSize := int(flatbuffers.GetVOffsetT(buf[vtable+flatbuffers.SizeVOffsetT:]))
	if vtSize < 2*flatbuffers.SizeVOffsetT || vtSize%flatbuffers.SizeVOffsetT != 0 || vtable+vtSize > size {
		return nil, corrupt("vtable size %v is invalid", vtSize)
	}
	if objSize < flatbuffers.SizeSOffsetT || table+objSize > size {
		return nil, corrupt("table size %v is invalid", objSize)
	}

	return &reader{
		t: flatbuffers.Table{
			Bytes: buf,
			Pos:   flatbuffers.UOffsetT(table),
		},
		size:    size,
		table:   table,
		objSize: objSize,
		vtable:  vtable,
		vtSize:  vtSize,
	}, nil
}

// field returns the offset of slot within the table, or zero if the writer
// didn't emit it. width is the number of bytes the field occupies inline.
func (r *reader) field(slot, width int) (int, error) {
	vo := 2*flatbuffers.SizeVOffsetT + slot*flatbuffers.SizeVOffsetT
	if vo >= r.vtSize {
		return 0, nil
	}
	off := int(r.t.Offset(flatbuffers.VOffsetT(vo)))
	if off == 0 {
		return 0, nil
	}
	if off < flatbuffers.SizeSOffsetT || off+width > r.objSize {
		return 0, corrupt("slot %v has out-of-range offset %v", slot, off)
	}
	return off, nil
}

func (r *reader) uint64Slot(slot int) (uint64, error) {
	off, err := r.field(slot, flatbuffers.SizeUint64)
	if err != nil || off == 0 {
		return 0, err
	}
	return r.t.GetUint64(flatbuffers.UOffsetT(r.table + off)), nil
}

func (r *reader) boolSlot(slot int) (bool, error) {
	off, err := r.field(slot, flatbuffers.SizeBool)
	if err != nil || off == 0 {
		return false, err
	}
	return r.t.GetBool(flatbuffers.UOffsetT(r.table + off)), nil
}

// vectorSlot returns the bytes of a required [ubyte] or string slot. The
// slice aliases the buffer.
func (r *reader) vectorSlot(slot int, name string) ([]byte, error) {
	off, err := r.field(slot, flatbuffers.SizeUOffsetT)
	if err != nil {
		return nil, err
	}
	if off == 0 {
		return nil, corrupt("required field %q is missing", name)
	}

	pos := r.table + off
	target := pos + int(flatbuffers.GetUOffsetT(r.t.Bytes[pos:]))
	if target+flatbuffers.SizeUOffsetT > r.size {
		return nil, corrupt("field %q points outside the buffer", name)
	}
	n := int(flatbuffers.GetUOffsetT(r.t.Bytes[target:]))
	if target+flatbuffers.SizeUOffsetT+n > r.size {
		return nil, corrupt("field %q has length %v past the end of the buffer", name, n)
	}

	return r.t.ByteVector(flatbuffers.UOffsetT(pos)), nil
}
