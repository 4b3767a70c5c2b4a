// Package requestctx carries the identity of the client whose event is being handled.
//
// The dispatch layer that receives events from Gateways builds one RequestContext per event and
// attaches it to the context.Context passed down to application code. Operations that target "the
// current client" read it from there.
package requestctx

import (
	"context"
	"sync"

	"github.com/sessamekesh/gateway-client/pkg/clientid"
	"github.com/sessamekesh/gateway-client/pkg/message/value"
)

type RequestContext struct {
	LocalIp      uint32
	LocalPort    uint16
	ClientIp     uint32
	ClientPort   uint16
	ConnectionId uint32
	ClientId     string

	mut_session sync.RWMutex
	session     value.Value
}

type RequestContextParams struct {
	LocalIp      uint32
	LocalPort    uint16
	ClientIp     uint32
	ClientPort   uint16
	ConnectionId uint32
	Session      value.Value
}

func CreateRequestContext(params RequestContextParams) *RequestContext {
	session := params.Session
	if session.IsNull() {
		session = value.Map()
	}
	return &RequestContext{
		LocalIp:      params.LocalIp,
		LocalPort:    params.LocalPort,
		ClientIp:     params.ClientIp,
		ClientPort:   params.ClientPort,
		ConnectionId: params.ConnectionId,
		ClientId:     clientid.Encode(params.LocalIp, params.LocalPort, params.ConnectionId),
		session:      session,
	}
}

// GatewayAddress is the internal address of the Gateway holding the current client.
func (rc *RequestContext) GatewayAddress() string {
	return clientid.JoinAddress(rc.LocalIp, rc.LocalPort)
}

// Targets reports whether an operation aimed at clientId means the current client. An empty id
// always does.
func (rc *RequestContext) Targets(clientId string) bool {
	return clientId == "" || clientId == rc.ClientId
}

func (rc *RequestContext) Session() value.Value {
	rc.mut_session.RLock()
	defer rc.mut_session.RUnlock()
	return rc.session
}

func (rc *RequestContext) SetSession(session value.Value) {
	rc.mut_session.Lock()
	defer rc.mut_session.Unlock()
	rc.session = session
}

// MergeSession applies patch on top of the snapshot, recursively, and returns the result.
func (rc *RequestContext) MergeSession(patch value.Value) value.Value {
	rc.mut_session.Lock()
	defer rc.mut_session.Unlock()
	if !patch.IsContainer() {
		return rc.session
	}
	rc.session = value.ReplaceRecursive(rc.session, patch)
	return rc.session
}

type contextKey struct{}

func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, contextKey{}, rc)
}

func FromContext(ctx context.Context) (*RequestContext, bool) {
	rc, ok := ctx.Value(contextKey{}).(*RequestContext)
	return rc, ok && rc != nil
}
