package easyduplex

import (
	"fmt"
	"sync"
)

// NewMessage returns a Message routed by id, carrying the encoded data.
func NewMessage(id uint32, data []byte) *Message {
	return &Message{
		id:   id,
		data: data,
	}
}

// Message is the frame exchanged by Client: a routing ID and an encoded payload.
// Handlers and middlewares may attach values to it with Set.
type Message struct {
	id      uint32
	data    []byte
	storage map[string]interface{}
	mu      sync.RWMutex
}

// ID returns the routing ID.
func (m *Message) ID() uint32 {
	return m.id
}

// Data returns the encoded payload.
func (m *Message) Data() []byte {
	return m.data
}

// Set stores kv pair.
func (m *Message) Set(key string, value interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.storage == nil {
		m.storage = make(map[string]interface{})
	}
	m.storage[key] = value
}

// Get retrieves the value according to the key.
func (m *Message) Get(key string) (value interface{}, exists bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, exists = m.storage[key]
	return
}

// Remove deletes the key from storage.
func (m *Message) Remove(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.storage, key)
}

// String is used by the session's "<--" and "-->" debug logs.
func (m *Message) String() string {
	return fmt.Sprintf("Message(id=%d, size=%d)", m.id, len(m.data))
}
