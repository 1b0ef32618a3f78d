// Package easyduplex manages full-duplex, message-oriented sessions over
// a stream transport (TCP or unix socket, optionally TLS).
//
// A Session runs a reader loop and a writer loop concurrently once it is
// connected. Whichever side fails first schedules the disconnect, and the
// failure is reported exactly once, by Disconnect:
//
//	s := easyduplex.NewSession[string](proto, &easyduplex.SessionOption{Name: "vm-1"})
//	if err := s.Connect(ctx, easyduplex.TCPAddress("127.0.0.1", 4444), nil); err != nil {
//		return err
//	}
//	defer s.Disconnect(context.Background())
//
// Protocol defines what a message is. Client is a ready-made Protocol
// exchanging packed Message frames, routed by message ID.
package easyduplex
