package stream

import "encoding/binary"

// HostOrder is the byte order of the running machine. Decoding with any other
// order swaps bytes.
var HostOrder binary.ByteOrder = binary.NativeEndian

func readValue[T any](s *Stream, order binary.ByteOrder) (T, error) {
	var v T
	buf := make([]byte, binary.Size(v))
	if err := s.ReadExact(buf); err != nil {
		return v, err
	}
	_, err := binary.Decode(buf, order, &v)
	return v, err
}

func readValues[T any](s *Stream, n int, order binary.ByteOrder) ([]T, error) {
	v := make([]T, n)
	buf := make([]byte, binary.Size(v))
	if err := s.ReadExact(buf); err != nil {
		return nil, err
	}
	if _, err := binary.Decode(buf, order, v); err != nil {
		return nil, err
	}
	return v, nil
}

func writeValue(s *Stream, order binary.ByteOrder, v any) error {
	buf, err := binary.Append(nil, order, v)
	if err != nil {
		return err
	}
	_, err = s.Write(buf)
	return err
}

func (s *Stream) ReadInt16(order binary.ByteOrder) (int16, error) {
	return readValue[int16](s, order)
}

func (s *Stream) ReadInt32(order binary.ByteOrder) (int32, error) {
	return readValue[int32](s, order)
}

func (s *Stream) ReadInt64(order binary.ByteOrder) (int64, error) {
	return readValue[int64](s, order)
}

func (s *Stream) ReadUint16(order binary.ByteOrder) (uint16, error) {
	return readValue[uint16](s, order)
}

func (s *Stream) ReadUint32(order binary.ByteOrder) (uint32, error) {
	return readValue[uint32](s, order)
}

func (s *Stream) ReadUint64(order binary.ByteOrder) (uint64, error) {
	return readValue[uint64](s, order)
}

func (s *Stream) ReadFloat32(order binary.ByteOrder) (float32, error) {
	return readValue[float32](s, order)
}

func (s *Stream) ReadFloat64(order binary.ByteOrder) (float64, error) {
	return readValue[float64](s, order)
}

// The array readers decode n consecutive elements.

func (s *Stream) ReadInt16s(n int, order binary.ByteOrder) ([]int16, error) {
	return readValues[int16](s, n, order)
}

func (s *Stream) ReadInt32s(n int, order binary.ByteOrder) ([]int32, error) {
	return readValues[int32](s, n, order)
}

func (s *Stream) ReadInt64s(n int, order binary.ByteOrder) ([]int64, error) {
	return readValues[int64](s, n, order)
}

func (s *Stream) ReadUint16s(n int, order binary.ByteOrder) ([]uint16, error) {
	return readValues[uint16](s, n, order)
}

func (s *Stream) ReadUint32s(n int, order binary.ByteOrder) ([]uint32, error) {
	return readValues[uint32](s, n, order)
}

func (s *Stream) ReadUint64s(n int, order binary.ByteOrder) ([]uint64, error) {
	return readValues[uint64](s, n, order)
}

func (s *Stream) ReadFloat32s(n int, order binary.ByteOrder) ([]float32, error) {
	return readValues[float32](s, n, order)
}

func (s *Stream) ReadFloat64s(n int, order binary.ByteOrder) ([]float64, error) {
	return readValues[float64](s, n, order)
}

func (s *Stream) WriteInt16(v int16, order binary.ByteOrder) error     { return writeValue(s, order, v) }
func (s *Stream) WriteInt32(v int32, order binary.ByteOrder) error     { return writeValue(s, order, v) }
func (s *Stream) WriteInt64(v int64, order binary.ByteOrder) error     { return writeValue(s, order, v) }
func (s *Stream) WriteUint16(v uint16, order binary.ByteOrder) error   { return writeValue(s, order, v) }
func (s *Stream) WriteUint32(v uint32, order binary.ByteOrder) error   { return writeValue(s, order, v) }
func (s *Stream) WriteUint64(v uint64, order binary.ByteOrder) error   { return writeValue(s, order, v) }
func (s *Stream) WriteFloat32(v float32, order binary.ByteOrder) error { return writeValue(s, order, v) }
func (s *Stream) WriteFloat64(v float64, order binary.ByteOrder) error { return writeValue(s, order, v) }

func (s *Stream) WriteInt16s(v []int16, order binary.ByteOrder) error     { return writeValue(s, order, v) }
func (s *Stream) WriteInt32s(v []int32, order binary.ByteOrder) error     { return writeValue(s, order, v) }
func (s *Stream) WriteInt64s(v []int64, order binary.ByteOrder) error     { return writeValue(s, order, v) }
func (s *Stream) WriteUint16s(v []uint16, order binary.ByteOrder) error   { return writeValue(s, order, v) }
func (s *Stream) WriteUint32s(v []uint32, order binary.ByteOrder) error   { return writeValue(s, order, v) }
func (s *Stream) WriteUint64s(v []uint64, order binary.ByteOrder) error   { return writeValue(s, order, v) }
func (s *Stream) WriteFloat32s(v []float32, order binary.ByteOrder) error { return writeValue(s, order, v) }
func (s *Stream) WriteFloat64s(v []float64, order binary.ByteOrder) error { return writeValue(s, order, v) }
