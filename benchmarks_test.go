package easyduplex

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net"
	"testing"
)

// go test -bench="^Benchmark\w+$" -run=none -benchmem

func BenchmarkDefaultPacker_Pack(b *testing.B) {
	packer := NewDefaultPacker()
	msg := NewMessage(1, []byte("ping, ping, ping"))
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = packer.Pack(msg)
	}
}

func BenchmarkDefaultPacker_Unpack(b *testing.B) {
	packer := NewDefaultPacker()
	packed, _ := packer.Pack(NewMessage(1, []byte("ping, ping, ping")))
	r := bytes.NewReader(packed)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r.Reset(packed)
		_, _ = packer.Unpack(r)
	}
}

func BenchmarkClient_Send(b *testing.B) {
	p1, p2 := net.Pipe()
	go func() { _, _ = io.Copy(io.Discard, p2) }()
	defer p2.Close() // nolint

	c := NewClient(&ClientOption{SessionOption: SessionOption{
		Logger: MuteLogger(),
		Dial:   func(context.Context, Address, *tls.Config) (net.Conn, error) { return p1, nil },
	}})
	if err := c.Connect(context.Background(), Address{}, nil); err != nil {
		b.Fatal(err)
	}
	data := []byte("ping, ping, ping")
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = c.Send(1, data)
	}
	b.StopTimer()
	_ = c.Disconnect(context.Background())
}
