// Package gatewaytest runs fake Register and Gateway processes on loopback ports for tests.
package gatewaytest

import (
	"bufio"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

type RegisterQuery struct {
	Event     string
	SecretKey string
}

type FakeRegister struct {
	listener net.Listener

	mut_state sync.Mutex
	addresses []string
	rawReply  *string
	queries   []RegisterQuery
}

func StartFakeRegister(t testing.TB, addresses ...string) *FakeRegister {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	r := &FakeRegister{
		listener:  listener,
		addresses: addresses,
	}
	t.Cleanup(func() { listener.Close() })

	go r.serve()
	return r
}

func (r *FakeRegister) Address() string {
	return r.listener.Addr().String()
}

func (r *FakeRegister) SetAddresses(addresses ...string) {
	r.mut_state.Lock()
	defer r.mut_state.Unlock()
	r.addresses = addresses
	r.rawReply = nil
}

// SetRawReply makes the register answer with line verbatim instead of an address list.
func (r *FakeRegister) SetRawReply(line string) {
	r.mut_state.Lock()
	defer r.mut_state.Unlock()
	r.rawReply = &line
}

func (r *FakeRegister) Queries() []RegisterQuery {
	r.mut_state.Lock()
	defer r.mut_state.Unlock()
	return append([]RegisterQuery{}, r.queries...)
}

func (r *FakeRegister) QueryCount() int {
	r.mut_state.Lock()
	defer r.mut_state.Unlock()
	return len(r.queries)
}

func (r *FakeRegister) serve() {
	for {
		conn, err := r.listener.Accept()
		if err != nil {
			return
		}
		go r.handle(conn)
	}
}

func (r *FakeRegister) handle(conn net.Conn) {
	defer conn.Close()

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		return
	}
	request := gjson.ParseBytes(line)

	r.mut_state.Lock()
	r.queries = append(r.queries, RegisterQuery{
		Event:     request.Get("event").String(),
		SecretKey: request.Get("secret_key").String(),
	})
	reply := ""
	if r.rawReply != nil {
		reply = *r.rawReply
	} else {
		reply = addressesReply(r.addresses)
	}
	r.mut_state.Unlock()

	if reply == "" {
		return
	}
	conn.Write([]byte(reply + "\n"))
}

func addressesReply(addresses []string) string {
	reply := `{"addresses":[`
	for i, address := range addresses {
		if i > 0 {
			reply += ","
		}
		reply += `"` + address + `"`
	}
	return reply + "]}"
}
