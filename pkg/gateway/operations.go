package gateway

import (
	"context"

	gatewaymsg "github.com/sessamekesh/gateway-client/pkg/message/gateway"
	"github.com/sessamekesh/gateway-client/pkg/message/value"
)

// Operations is everything application code can ask of a Gateway fleet. Operations that accept a
// client id treat "" and the id of the client in the request context as the current client.
type Operations interface {
	// Sending
	SendToAll(ctx context.Context, message gatewaymsg.Body, opts BroadcastOptions) error
	SendToClient(ctx context.Context, clientId string, message gatewaymsg.Body) error
	SendToCurrentClient(ctx context.Context, message gatewaymsg.Body) error
	SendToUid(ctx context.Context, uids []string, message gatewaymsg.Body) error
	SendToGroup(ctx context.Context, groups []string, message gatewaymsg.Body, opts GroupSendOptions) error

	// Connection control
	CloseClient(ctx context.Context, clientId string, message gatewaymsg.Body) error
	CloseCurrentClient(ctx context.Context, message gatewaymsg.Body) error
	DestroyClient(ctx context.Context, clientId string) error
	DestroyCurrentClient(ctx context.Context) error

	// Binding
	BindUid(ctx context.Context, clientId string, uid string) error
	UnbindUid(ctx context.Context, clientId string, uid string) error
	JoinGroup(ctx context.Context, clientId string, group string) error
	LeaveGroup(ctx context.Context, clientId string, group string) error
	Ungroup(ctx context.Context, group string) error

	// Liveness
	IsOnline(ctx context.Context, clientId string) (bool, error)
	IsUidOnline(ctx context.Context, uid string) (bool, error)
	IsUidsOnline(ctx context.Context, uids []string) (map[string]bool, error)

	// Sessions
	GetSession(ctx context.Context, clientId string) (value.Value, bool, error)
	SetSession(ctx context.Context, clientId string, session value.Value) error
	UpdateSession(ctx context.Context, clientId string, session value.Value) error
	GetAllClientSessions(ctx context.Context) (map[string]value.Value, error)
	GetClientSessionsByGroup(ctx context.Context, group string) (map[string]value.Value, error)

	// Counting and listing
	GetAllClientIdCount(ctx context.Context) (int, error)
	GetClientIdCountByGroup(ctx context.Context, group string) (int, error)
	GetAllClientIdList(ctx context.Context) ([]string, error)
	GetClientIdListByGroup(ctx context.Context, groups ...string) ([]string, error)
	GetClientIdByUid(ctx context.Context, uid string) ([]string, error)
	BatchGetClientIdByUid(ctx context.Context, uids []string) (map[string][]string, error)
	GetUidByClientId(ctx context.Context, clientId string) (string, bool, error)
	GetAllUidList(ctx context.Context) ([]string, error)
	GetAllUidCount(ctx context.Context) (int, error)
	GetUidListByGroup(ctx context.Context, groups ...string) ([]string, error)
	GetUidCountByGroup(ctx context.Context, groups ...string) (int, error)
	GetAllGroupIdList(ctx context.Context) ([]string, error)
	GetAllGroupUidList(ctx context.Context) (map[string][]string, error)
	GetAllGroupUidCount(ctx context.Context) (map[string]int, error)
	GetAllGroupClientIdList(ctx context.Context) (map[string][]string, error)
	GetAllGroupClientIdCount(ctx context.Context) (map[string]int, error)

	// Query
	Select(ctx context.Context, fields []string, filter SelectFilter) ([]ConnectionInfo, error)

	// Directory
	Addresses(ctx context.Context) ([]string, error)
}

type BroadcastOptions struct {
	// ClientIds restricts the broadcast to these clients. Empty means every client.
	ClientIds        []string
	ExcludeClientIds []string
	// Raw asks Gateways to push the body as-is, skipping their client protocol encoder.
	Raw bool
}

type GroupSendOptions struct {
	ExcludeClientIds []string
	Raw              bool
}

// SelectFilter narrows a Select. Empty fields are not filtered on.
type SelectFilter struct {
	ClientIds []string
	Groups    []string
	Uids      []string
}

// ConnectionInfo is one client connection as reported by Select. Only the requested fields are
// filled in.
type ConnectionInfo struct {
	ClientId string
	Gateway  string
	Uid      string
	Groups   []string
	Session  value.Value
}

// Select field names understood by Gateways.
const (
	FieldUid     = "uid"
	FieldGroups  = "groups"
	FieldSession = "session"
)
