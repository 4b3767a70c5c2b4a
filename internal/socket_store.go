package internal

import (
	"fmt"
	"net"
	"sync"
)

type TooManySocketsError struct {
	MaxSockets int
}

func (e *TooManySocketsError) Error() string {
	return fmt.Sprintf("Too many persistent sockets are open (max=%d) - cannot keep another one", e.MaxSockets)
}

type SocketMetadata struct {
	Conn         net.Conn
	CreatedTime  int64
	LastUsedTime int64
}

// SocketStore keeps at most one persistent socket per Gateway address.
type SocketStore struct {
	MaxSockets int

	mut_sockets sync.RWMutex
	sockets     map[string]*SocketMetadata
}

func CreateSocketStore(maxSockets int) *SocketStore {
	return &SocketStore{
		MaxSockets:  maxSockets,
		mut_sockets: sync.RWMutex{},
		sockets:     make(map[string]*SocketMetadata),
	}
}

func (store *SocketStore) Get(address string) (net.Conn, bool) {
	store.mut_sockets.RLock()
	defer store.mut_sockets.RUnlock()

	socket, has := store.sockets[address]
	if !has {
		return nil, false
	}
	return socket.Conn, true
}

// Adopt stores conn for address unless another caller got there first, in which case the stored
// socket is returned and conn is left to the caller. The returned bool reports whether conn was kept.
func (store *SocketStore) Adopt(address string, conn net.Conn, timestamp int64) (net.Conn, bool, error) {
	store.mut_sockets.Lock()
	defer store.mut_sockets.Unlock()

	if existing, has := store.sockets[address]; has {
		return existing.Conn, false, nil
	}

	if store.MaxSockets > 0 && len(store.sockets) >= store.MaxSockets {
		return nil, false, &TooManySocketsError{MaxSockets: store.MaxSockets}
	}

	store.sockets[address] = &SocketMetadata{
		Conn:         conn,
		CreatedTime:  timestamp,
		LastUsedTime: timestamp,
	}
	return conn, true, nil
}

// Evict closes and forgets the socket for address, but only if it is still conn. A socket that was
// already replaced by a fresh one is left alone.
func (store *SocketStore) Evict(address string, conn net.Conn) {
	store.mut_sockets.Lock()
	socket, has := store.sockets[address]
	if has && socket.Conn == conn {
		delete(store.sockets, address)
	}
	store.mut_sockets.Unlock()

	conn.Close()
}

// Touch marks the socket for address as used. An address evicted in the meantime is ignored.
func (store *SocketStore) Touch(address string, timestamp int64) {
	store.mut_sockets.Lock()
	defer store.mut_sockets.Unlock()

	if socket, has := store.sockets[address]; has {
		socket.LastUsedTime = timestamp
	}
}

func (store *SocketStore) Len() int {
	store.mut_sockets.RLock()
	defer store.mut_sockets.RUnlock()
	return len(store.sockets)
}

// CloseIdle evicts every socket not used since lastUsedDeadline.
func (store *SocketStore) CloseIdle(lastUsedDeadline int64) int {
	store.mut_sockets.Lock()
	toClose := []net.Conn{}
	for address, socket := range store.sockets {
		if socket.LastUsedTime < lastUsedDeadline {
			toClose = append(toClose, socket.Conn)
			delete(store.sockets, address)
		}
	}
	store.mut_sockets.Unlock()

	for _, conn := range toClose {
		conn.Close()
	}
	return len(toClose)
}

func (store *SocketStore) CloseAll() {
	store.mut_sockets.Lock()
	toClose := make([]net.Conn, 0, len(store.sockets))
	for _, socket := range store.sockets {
		toClose = append(toClose, socket.Conn)
	}
	store.sockets = make(map[string]*SocketMetadata)
	store.mut_sockets.Unlock()

	for _, conn := range toClose {
		conn.Close()
	}
}
