package pre

import (
	"errors"
	"fmt"

	"github.com/taurusgroup/threshold-pre/pkg/math/curve"
)

// writer accumulates fixed size encodings, remembering the first error.
type writer struct {
	buf []byte
	err error
}

func newWriter(size int) *writer {
	return &writer{buf: make([]byte, 0, size)}
}

func (w *writer) point(p curve.Point) {
	if w.err != nil {
		return
	}
	if p == nil {
		w.err = errors.New("nil point")
		return
	}
	data, err := p.MarshalBinary()
	if err != nil {
		w.err = err
		return
	}
	w.buf = append(w.buf, data...)
}

func (w *writer) scalar(s curve.Scalar) {
	if w.err != nil {
		return
	}
	if s == nil {
		w.err = errors.New("nil scalar")
		return
	}
	data, err := s.MarshalBinary()
	if err != nil {
		w.err = err
		return
	}
	w.buf = append(w.buf, data...)
}

func (w *writer) raw(data []byte) {
	if w.err != nil {
		return
	}
	w.buf = append(w.buf, data...)
}

func (w *writer) signature(sig *Signature) {
	if w.err != nil {
		return
	}
	if sig == nil {
		w.err = errors.New("nil signature")
		return
	}
	w.point(sig.R)
	w.scalar(sig.Z)
}

func (w *writer) bytes() ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}
	return w.buf, nil
}

// reader consumes fixed size encodings, remembering the first error.
type reader struct {
	group curve.Curve
	data  []byte
	err   error
}

func newReader(group curve.Curve, data []byte) *reader {
	return &reader{group: group, data: data}
}

func (r *reader) next(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.data) < n {
		r.err = fmt.Errorf("unexpected end of data: need %d bytes, have %d", n, len(r.data))
		return nil
	}
	out := r.data[:n]
	r.data = r.data[n:]
	return out
}

func (r *reader) point() curve.Point {
	data := r.next(r.group.PointBytes())
	if r.err != nil {
		return nil
	}
	p := r.group.NewPoint()
	if err := p.UnmarshalBinary(data); err != nil {
		r.err = err
		return nil
	}
	return p
}

func (r *reader) scalar() curve.Scalar {
	data := r.next(r.group.ScalarBytes())
	if r.err != nil {
		return nil
	}
	s := r.group.NewScalar()
	if err := s.UnmarshalBinary(data); err != nil {
		r.err = err
		return nil
	}
	return s
}

func (r *reader) signature() *Signature {
	R := r.point()
	Z := r.scalar()
	if r.err != nil {
		return nil
	}
	return &Signature{R: R, Z: Z}
}

func (r *reader) raw(out []byte) {
	data := r.next(len(out))
	if r.err != nil {
		return
	}
	copy(out, data)
}

// done checks that all the data was consumed.
func (r *reader) done() error {
	if r.err != nil {
		return r.err
	}
	if len(r.data) != 0 {
		return fmt.Errorf("%d trailing bytes", len(r.data))
	}
	return nil
}
