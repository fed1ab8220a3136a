package internal

import (
	"errors"
	"io"
)

var ErrShortRead = errors.New("short read")

func ReadExactlyAt(r io.ReaderAt, out []byte, offset int64) error {
	for len(out) > 0 {
		n, err := r.ReadAt(out, offset)
		out = out[n:]
		offset += int64(n)
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
	}
	if len(out) > 0 {
		return ErrShortRead
	}
	return nil
}

func WriteExactlyAt(w io.WriterAt, in []byte, offset int64) error {
	for len(in) > 0 {
		n, err := w.WriteAt(in, offset)
		in = in[n:]
		offset += int64(n)
		if err != nil {
			return err
		}
	}
	return nil
}
