package bitpack

import "math"

// Mode selects which direction a Stream drives its single Serialize
// routine in. Go has no template mechanism to dispatch IsWriting/IsReading
// at compile time the way the original C++ does, so Stream carries Mode as
// a plain field and every Serialize* method switches on it once.
type Mode int

const (
	ModeWrite Mode = iota
	ModeRead
	ModeMeasure
)

// checkValue is the magic value SerializeCheck writes and verifies,
// catching a reader/writer that have desynced on the shape of a message.
const checkValue uint32 = 0x12345678

// Stream drives serialization for a single packet or message. The same
// Serialize(s *Stream) error method on a type is called whether s is
// writing, reading, or only measuring the bits the type would occupy.
type Stream struct {
	mode         Mode
	writer       *BitWriter
	reader       *BitReader
	measuredBits int
	ctx          interface{}
}

// NewWriteStream returns a Stream that packs into buf.
func NewWriteStream(buf []byte) *Stream {
	return &Stream{mode: ModeWrite, writer: NewBitWriter(buf)}
}

// NewReadStream returns a Stream that unpacks buf, which carries numBits
// valid bits.
func NewReadStream(buf []byte, numBits int) *Stream {
	return &Stream{mode: ModeRead, reader: NewBitReader(buf, numBits)}
}

// NewMeasureStream returns a Stream that only counts the bits a
// Serialize call would produce, writing and reading nothing.
func NewMeasureStream() *Stream {
	return &Stream{mode: ModeMeasure}
}

func (s *Stream) Mode() Mode        { return s.mode }
func (s *Stream) IsWriting() bool   { return s.mode == ModeWrite }
func (s *Stream) IsReading() bool   { return s.mode == ModeRead }
func (s *Stream) IsMeasuring() bool { return s.mode == ModeMeasure }

// Context carries caller-supplied state (e.g. a MessageFactory) that
// Serialize implementations need but that doesn't belong on the wire.
func (s *Stream) Context() interface{}     { return s.ctx }
func (s *Stream) SetContext(ctx interface{}) { s.ctx = ctx }

// BitsProcessed returns the number of bits written, read, or measured so far.
func (s *Stream) BitsProcessed() int {
	switch s.mode {
	case ModeWrite:
		return s.writer.BitsWritten()
	case ModeRead:
		return s.reader.BitsRead()
	default:
		return s.measuredBits
	}
}

func (s *Stream) BytesProcessed() int {
	return (s.BitsProcessed() + 7) / 8
}

// Flush finalizes the underlying writer, forcing out its last partial word.
// No-op in read and measure modes.
func (s *Stream) Flush() {
	if s.mode == ModeWrite {
		s.writer.FlushBits()
	}
}

// Data returns the underlying write buffer. Only valid in ModeWrite.
func (s *Stream) Data() []byte { return s.writer.Data() }

// SerializeBits serializes the low `bits` bits of *value, bits in [1,32].
func (s *Stream) SerializeBits(value *uint32, bits int) error {
	switch s.mode {
	case ModeWrite:
		s.writer.WriteBits(*value, bits)
		return nil
	case ModeRead:
		v, err := s.reader.ReadBits(bits)
		if err != nil {
			return err
		}
		*value = v
		return nil
	default:
		s.measuredBits += bits
		return nil
	}
}

// SerializeBool serializes a single bit.
func (s *Stream) SerializeBool(value *bool) error {
	var v uint32
	if s.IsWriting() && *value {
		v = 1
	}
	if err := s.SerializeBits(&v, 1); err != nil {
		return err
	}
	if s.IsReading() {
		*value = v != 0
	}
	return nil
}

// SerializeInteger range-codes *value into bits_required(min,max) bits.
func (s *Stream) SerializeInteger(value *int32, min, max int32) error {
	bitsNeeded := BitsRequired(0, uint32(max-min))
	if bitsNeeded == 0 {
		if s.IsReading() {
			*value = min
		}
		return nil
	}
	var unsigned uint32
	if s.IsWriting() {
		if *value < min || *value > max {
			return ErrValueOutOfRange
		}
		unsigned = uint32(*value - min)
	}
	if err := s.SerializeBits(&unsigned, bitsNeeded); err != nil {
		return err
	}
	if s.IsReading() {
		*value = int32(unsigned) + min
	}
	return nil
}

// SerializeUint32 serializes a full, uncompressed 32-bit value.
func (s *Stream) SerializeUint32(value *uint32) error {
	return s.SerializeBits(value, 32)
}

// SerializeUint64 serializes a full 64-bit value as two 32-bit halves.
func (s *Stream) SerializeUint64(value *uint64) error {
	lo := uint32(*value)
	hi := uint32(*value >> 32)
	if err := s.SerializeBits(&lo, 32); err != nil {
		return err
	}
	if err := s.SerializeBits(&hi, 32); err != nil {
		return err
	}
	if s.IsReading() {
		*value = uint64(lo) | uint64(hi)<<32
	}
	return nil
}

// SerializeFloat32 serializes an IEEE-754 float via its bit pattern.
func (s *Stream) SerializeFloat32(value *float32) error {
	var bits uint32
	if s.IsWriting() {
		bits = math.Float32bits(*value)
	}
	if err := s.SerializeBits(&bits, 32); err != nil {
		return err
	}
	if s.IsReading() {
		*value = math.Float32frombits(bits)
	}
	return nil
}

// SerializeFloat64 serializes an IEEE-754 double via its bit pattern.
func (s *Stream) SerializeFloat64(value *float64) error {
	var bits uint64
	if s.IsWriting() {
		bits = math.Float64bits(*value)
	}
	if err := s.SerializeUint64(&bits); err != nil {
		return err
	}
	if s.IsReading() {
		*value = math.Float64frombits(bits)
	}
	return nil
}

// SerializeAlign pads (or consumes padding, or measures padding) up to the
// next byte boundary.
func (s *Stream) SerializeAlign() error {
	switch s.mode {
	case ModeWrite:
		s.writer.WriteAlign()
		return nil
	case ModeRead:
		return s.reader.ReadAlign()
	default:
		remainder := s.measuredBits % 8
		if remainder != 0 {
			s.measuredBits += 8 - remainder
		}
		return nil
	}
}

// SerializeBytes serializes exactly len(data) bytes, byte-aligned.
// data must already be allocated by the caller in every mode.
func (s *Stream) SerializeBytes(data []byte) error {
	if err := s.SerializeAlign(); err != nil {
		return err
	}
	switch s.mode {
	case ModeWrite:
		s.writer.WriteBytes(data)
		return nil
	case ModeRead:
		return s.reader.ReadBytes(data)
	default:
		s.measuredBits += len(data) * 8
		return nil
	}
}

// SerializeCheck writes (or verifies, or measures) a magic value that
// catches a reader desynced from the writer's message shape.
func (s *Stream) SerializeCheck() error {
	v := checkValue
	if err := s.SerializeBits(&v, 32); err != nil {
		return err
	}
	if s.IsReading() && v != checkValue {
		return ErrStreamCorrupt
	}
	return nil
}

// SerializeString writes a length-prefixed UTF-8 string up to maxLength bytes.
func (s *Stream) SerializeString(value *string, maxLength int) error {
	length := int32(0)
	if s.IsWriting() {
		length = int32(len(*value))
	}
	if err := s.SerializeInteger(&length, 0, int32(maxLength)); err != nil {
		return err
	}
	buf := make([]byte, length)
	if s.IsWriting() {
		copy(buf, *value)
	}
	if err := s.SerializeBytes(buf); err != nil {
		return err
	}
	if s.IsReading() {
		*value = string(buf)
	}
	return nil
}
