package gateway

import (
	"context"

	"github.com/sessamekesh/gateway-client/pkg/errors"
	gatewaymsg "github.com/sessamekesh/gateway-client/pkg/message/gateway"
	"github.com/sessamekesh/gateway-client/pkg/message/value"
	"github.com/sessamekesh/gateway-client/pkg/requestctx"
	utils "github.com/sessamekesh/gateway-client/pkg/util"
)

func rawFlag(raw bool) uint8 {
	if raw {
		return gatewaymsg.FlagNotCallEncode
	}
	return 0
}

// SendToAll pushes message to every client, or to opts.ClientIds when given. Excluded ids are
// dropped locally for targeted sends and passed to their Gateway otherwise.
func (c *Connection) SendToAll(ctx context.Context, message gatewaymsg.Body, opts BroadcastOptions) error {
	flag := rawFlag(opts.Raw)

	if len(opts.ClientIds) > 0 {
		excluded := utils.CreateStringSet(opts.ExcludeClientIds...)
		targets := make([]string, 0, len(opts.ClientIds))
		for _, id := range opts.ClientIds {
			if !excluded.Has(id) {
				targets = append(targets, id)
			}
		}

		grouped := c.groupByAddress(targets)
		frames := make(map[string]*gatewaymsg.Frame, len(grouped.order))
		for _, address := range grouped.order {
			ext, err := jsonExt(value.Map(value.Pair("connections", connectionSet(grouped.ids[address]))))
			if err != nil {
				return err
			}
			frames[address] = &gatewaymsg.Frame{
				Cmd:     gatewaymsg.Command_SendToAll,
				Flag:    flag,
				ExtData: ext,
				Body:    message,
			}
		}
		return c.sendFrames(ctx, frames)
	}

	excluded := c.groupByAddress(opts.ExcludeClientIds)
	return c.broadcast(ctx, func(address string) (*gatewaymsg.Frame, error) {
		frame := &gatewaymsg.Frame{
			Cmd:  gatewaymsg.Command_SendToAll,
			Flag: flag,
			Body: message,
		}
		if ids, has := excluded.ids[address]; has {
			ext, err := jsonExt(value.Map(value.Pair("exclude", connectionSet(ids))))
			if err != nil {
				return nil, err
			}
			frame.ExtData = ext
		}
		return frame, nil
	})
}

func (c *Connection) SendToClient(ctx context.Context, clientId string, message gatewaymsg.Body) error {
	return c.sendToClient(ctx, "SendToClient", clientId, gatewaymsg.Command_SendToOne, message, nil)
}

func (c *Connection) SendToCurrentClient(ctx context.Context, message gatewaymsg.Body) error {
	if _, err := c.currentClient(ctx, "SendToCurrentClient"); err != nil {
		return err
	}
	return c.sendToClient(ctx, "SendToCurrentClient", "", gatewaymsg.Command_SendToOne, message, nil)
}

func (c *Connection) SendToUid(ctx context.Context, uids []string, message gatewaymsg.Body) error {
	if len(uids) == 0 {
		return nil
	}
	ext, err := jsonExt(value.Strings(uids...))
	if err != nil {
		return err
	}
	return c.broadcast(ctx, func(string) (*gatewaymsg.Frame, error) {
		return &gatewaymsg.Frame{
			Cmd:     gatewaymsg.Command_SendToUid,
			ExtData: ext,
			Body:    message,
		}, nil
	})
}

// SendToGroup pushes message to every member of groups. Excluded clients are passed only to the
// Gateway that holds them.
func (c *Connection) SendToGroup(ctx context.Context, groups []string, message gatewaymsg.Body, opts GroupSendOptions) error {
	if len(groups) == 0 {
		return nil
	}
	flag := rawFlag(opts.Raw)
	groupList := value.Strings(groups...)

	defaultExt, err := jsonExt(value.Map(value.Pair("group", groupList), value.Pair("exclude", value.Null())))
	if err != nil {
		return err
	}

	excluded := c.groupByAddress(opts.ExcludeClientIds)
	return c.broadcast(ctx, func(address string) (*gatewaymsg.Frame, error) {
		frame := &gatewaymsg.Frame{
			Cmd:     gatewaymsg.Command_SendToGroup,
			Flag:    flag,
			ExtData: defaultExt,
			Body:    message,
		}
		if ids, has := excluded.ids[address]; has {
			ext, extErr := jsonExt(value.Map(value.Pair("group", groupList), value.Pair("exclude", connectionSet(ids))))
			if extErr != nil {
				return nil, extErr
			}
			frame.ExtData = ext
		}
		return frame, nil
	})
}

// CloseClient asks the Gateway to send message, if any, then close the connection once its
// output buffer drains.
func (c *Connection) CloseClient(ctx context.Context, clientId string, message gatewaymsg.Body) error {
	return c.sendToClient(ctx, "CloseClient", clientId, gatewaymsg.Command_Kick, message, nil)
}

func (c *Connection) CloseCurrentClient(ctx context.Context, message gatewaymsg.Body) error {
	if _, err := c.currentClient(ctx, "CloseCurrentClient"); err != nil {
		return err
	}
	return c.sendToClient(ctx, "CloseCurrentClient", "", gatewaymsg.Command_Kick, message, nil)
}

// DestroyClient drops the connection immediately, discarding anything still buffered.
func (c *Connection) DestroyClient(ctx context.Context, clientId string) error {
	return c.sendToClient(ctx, "DestroyClient", clientId, gatewaymsg.Command_Destroy, gatewaymsg.Body{}, nil)
}

func (c *Connection) DestroyCurrentClient(ctx context.Context) error {
	if _, err := c.currentClient(ctx, "DestroyCurrentClient"); err != nil {
		return err
	}
	return c.sendToClient(ctx, "DestroyCurrentClient", "", gatewaymsg.Command_Destroy, gatewaymsg.Body{}, nil)
}

func (c *Connection) BindUid(ctx context.Context, clientId string, uid string) error {
	return c.sendToClient(ctx, "BindUid", clientId, gatewaymsg.Command_BindUid, gatewaymsg.Body{}, []byte(uid))
}

func (c *Connection) UnbindUid(ctx context.Context, clientId string, uid string) error {
	return c.sendToClient(ctx, "UnbindUid", clientId, gatewaymsg.Command_UnbindUid, gatewaymsg.Body{}, []byte(uid))
}

func (c *Connection) JoinGroup(ctx context.Context, clientId string, group string) error {
	return c.sendToClient(ctx, "JoinGroup", clientId, gatewaymsg.Command_JoinGroup, gatewaymsg.Body{}, []byte(group))
}

func (c *Connection) LeaveGroup(ctx context.Context, clientId string, group string) error {
	return c.sendToClient(ctx, "LeaveGroup", clientId, gatewaymsg.Command_LeaveGroup, gatewaymsg.Body{}, []byte(group))
}

// Ungroup dissolves group on every Gateway. Its members stay connected.
func (c *Connection) Ungroup(ctx context.Context, group string) error {
	if group == "" {
		return nil
	}
	return c.broadcast(ctx, func(string) (*gatewaymsg.Frame, error) {
		return &gatewaymsg.Frame{
			Cmd:     gatewaymsg.Command_Ungroup,
			ExtData: []byte(group),
		}, nil
	})
}

// sessionValue turns null into an empty session and refuses scalars, which the Gateway cannot
// store as a session.
func (c *Connection) sessionValue(session value.Value) (value.Value, error) {
	if session.IsNull() {
		return value.Map(), nil
	}
	if !session.IsContainer() {
		return session, &errors.CodecError{Codec: c.codec.Name(), Reason: "session must be a map"}
	}
	return session, nil
}

// SetSession replaces the session of clientId. For the current client the request context
// snapshot is replaced too.
func (c *Connection) SetSession(ctx context.Context, clientId string, session value.Value) error {
	session, err := c.sessionValue(session)
	if err != nil {
		return err
	}
	if rc, has := requestctx.FromContext(ctx); has && rc.Targets(clientId) {
		rc.SetSession(session)
	}
	encoded, err := c.codec.Encode(session)
	if err != nil {
		return err
	}
	return c.sendToClient(ctx, "SetSession", clientId, gatewaymsg.Command_SetSession, gatewaymsg.Body{}, encoded)
}

// UpdateSession merges session into the stored one, nested maps included. Only the patch travels
// to the Gateway, which does the same merge on its side.
func (c *Connection) UpdateSession(ctx context.Context, clientId string, session value.Value) error {
	session, err := c.sessionValue(session)
	if err != nil {
		return err
	}
	if rc, has := requestctx.FromContext(ctx); has && rc.Targets(clientId) {
		rc.MergeSession(session)
	}
	encoded, err := c.codec.Encode(session)
	if err != nil {
		return err
	}
	return c.sendToClient(ctx, "UpdateSession", clientId, gatewaymsg.Command_UpdateSession, gatewaymsg.Body{}, encoded)
}
