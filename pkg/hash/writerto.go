package hash

import (
	"bytes"
	"encoding/binary"
	"io"
)

// WriterToWithDomain is implemented by the keys, points and capsules that get
// absorbed into a transcript.
type WriterToWithDomain interface {
	io.WriterTo

	// Domain names the type, so that equal encodings of different types hash differently.
	Domain() string
}

// writeWithDomain writes len(domain) ‖ domain ‖ len(data) ‖ data.
func writeWithDomain(w io.Writer, object WriterToWithDomain) error {
	var data bytes.Buffer
	if _, err := object.WriteTo(&data); err != nil {
		return err
	}
	domain := object.Domain()

	frame := make([]byte, 0, 16+len(domain)+data.Len())
	frame = binary.BigEndian.AppendUint64(frame, uint64(len(domain)))
	frame = append(frame, domain...)
	frame = binary.BigEndian.AppendUint64(frame, uint64(data.Len()))
	frame = append(frame, data.Bytes()...)
	_, err := w.Write(frame)
	return err
}

// BytesWithDomain tags raw bytes with a domain, for labels and fixed-width fields.
type BytesWithDomain struct {
	TheDomain string
	Bytes     []byte
}

// WriteTo implements io.WriterTo.
func (b BytesWithDomain) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(b.Bytes)
	return int64(n), err
}

// Domain implements WriterToWithDomain.
func (b BytesWithDomain) Domain() string {
	return b.TheDomain
}
