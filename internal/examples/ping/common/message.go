package common

const (
	MsgIdPing = 1
	MsgIdPong = 2
)

// Ping is the payload of both MsgIdPing and MsgIdPong.
type Ping struct {
	Seq  int    `json:"seq" msgpack:"seq"`
	From string `json:"from" msgpack:"from"`
}
