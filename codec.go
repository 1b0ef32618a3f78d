package easyduplex

import (
	"fmt"
	jsoniter "github.com/json-iterator/go"
	"github.com/vmihailenco/msgpack/v5"
	"google.golang.org/protobuf/proto"
	"strings"
)

//go:generate mockgen -destination mock/codec_mock.go -package mock . Codec

// Codec is a generic codec for encoding and decoding message data.
type Codec interface {
	// Encode encodes data into []byte.
	// Returns error when error occurred.
	Encode(v interface{}) ([]byte, error)

	// Decode decodes data into v.
	// Returns error when error occurred.
	Decode(data []byte, v interface{}) error
}

var (
	_ Codec = &JsonCodec{}
	_ Codec = &MsgpackCodec{}
	_ Codec = &ProtobufCodec{}
)

// NewCodec returns the Codec registered as name: "json", "msgpack" or "protobuf".
func NewCodec(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case "json":
		return &JsonCodec{}, nil
	case "msgpack":
		return &MsgpackCodec{}, nil
	case "protobuf", "pb":
		return &ProtobufCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// JsonCodec encodes and decodes data in json way, with json-iterator.
type JsonCodec struct{}

// Encode implements the Codec Encode method.
func (c *JsonCodec) Encode(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// Decode implements the Codec Decode method.
func (c *JsonCodec) Decode(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// MsgpackCodec encodes and decodes data with msgpack.
type MsgpackCodec struct{}

// Encode implements the Codec Encode method.
func (m *MsgpackCodec) Encode(v interface{}) ([]byte, error) {
	return msgpack.Marshal(v)
}

// Decode implements the Codec Decode method.
func (m *MsgpackCodec) Decode(data []byte, v interface{}) error {
	return msgpack.Unmarshal(data, v)
}

// ProtobufCodec encodes and decodes proto.Message values.
type ProtobufCodec struct{}

// Encode implements the Codec Encode method.
func (p *ProtobufCodec) Encode(v interface{}) ([]byte, error) {
	m, ok := v.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("v should be proto.Message but %T", v)
	}
	return proto.Marshal(m)
}

// Decode implements the Codec Decode method.
func (p *ProtobufCodec) Decode(data []byte, v interface{}) error {
	m, ok := v.(proto.Message)
	if !ok {
		return fmt.Errorf("v should be proto.Message but %T", v)
	}
	return proto.Unmarshal(data, m)
}
