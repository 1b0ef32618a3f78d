package easyduplex

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

//go:generate mockgen -destination mock/packer_mock.go -package mock . Packer

// Packer is a generic interface to pack and unpack message packet.
type Packer interface {
	// Pack packs Message into the packet to be written.
	Pack(msg *Message) ([]byte, error)

	// Unpack unpacks the message packet from reader,
	// returns the Message, and error if error occurred.
	Unpack(reader io.Reader) (*Message, error)
}

var _ Packer = &DefaultPacker{}

// ErrMessageTooLarge is returned when a packet exceeds DefaultPacker.MaxDataSize.
var ErrMessageTooLarge = errors.New("message too large")

// NewDefaultPacker creates a DefaultPacker which accepts any data size.
func NewDefaultPacker() *DefaultPacker {
	return &DefaultPacker{}
}

// DefaultPacker is the default Packer used by Client.
// DefaultPacker treats the packet with the format:
//
//	(size)(id)(data):
//		size: uint32 | took 4 bytes, only the size of `data`
//		id:   uint32 | took 4 bytes
//		data: []byte | length is the size
type DefaultPacker struct {
	// MaxDataSize limits the size of `data`, 0 means unlimited.
	MaxDataSize int
}

func (d *DefaultPacker) bytesOrder() binary.ByteOrder {
	return binary.BigEndian
}

// Pack implements the Packer Pack method.
func (d *DefaultPacker) Pack(msg *Message) ([]byte, error) {
	size := len(msg.Data())
	if d.MaxDataSize > 0 && size > d.MaxDataSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, size, d.MaxDataSize)
	}
	buff := make([]byte, 8+size)
	d.bytesOrder().PutUint32(buff[:4], uint32(size))
	d.bytesOrder().PutUint32(buff[4:8], msg.ID())
	copy(buff[8:], msg.Data())
	return buff, nil
}

// Unpack implements the Packer Unpack method.
func (d *DefaultPacker) Unpack(reader io.Reader) (*Message, error) {
	header := make([]byte, 8)
	if _, err := io.ReadFull(reader, header); err != nil {
		return nil, fmt.Errorf("read header err: %w", err)
	}
	size := d.bytesOrder().Uint32(header[:4])
	id := d.bytesOrder().Uint32(header[4:])
	if d.MaxDataSize > 0 && int(size) > d.MaxDataSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, size, d.MaxDataSize)
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(reader, data); err != nil {
		return nil, fmt.Errorf("read data err: %w", err)
	}
	return NewMessage(id, data), nil
}
