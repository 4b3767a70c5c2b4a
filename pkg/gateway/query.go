package gateway

import (
	"context"
	goerrs "errors"
	"sort"

	"github.com/sessamekesh/gateway-client/pkg/errors"
	gatewaymsg "github.com/sessamekesh/gateway-client/pkg/message/gateway"
	"github.com/sessamekesh/gateway-client/pkg/message/value"
	"github.com/sessamekesh/gateway-client/pkg/requestctx"
	utils "github.com/sessamekesh/gateway-client/pkg/util"
	"go.uber.org/zap"
)

// IsOnline asks the owning Gateway whether clientId is still connected. Ids that do not decode are
// reported offline; "" needs a request context.
func (c *Connection) IsOnline(ctx context.Context, clientId string) (bool, error) {
	address, connectionId, err := c.resolve(ctx, "IsOnline", clientId)
	if err != nil {
		var missing *errors.MissingRequestContext
		if goerrs.As(err, &missing) {
			return false, err
		}
		c.log.Debug("IsOnline on an unresolvable client id", zap.String("client_id", clientId), zap.Error(err))
		return false, nil
	}
	reply, err := c.transport.SendAndReceive(ctx, address, &gatewaymsg.Frame{
		Cmd:          gatewaymsg.Command_IsOnline,
		ConnectionId: connectionId,
	})
	if err != nil {
		return false, err
	}
	return reply.Truthy(), nil
}

func (c *Connection) IsUidOnline(ctx context.Context, uid string) (bool, error) {
	clientIds, err := c.GetClientIdByUid(ctx, uid)
	if err != nil {
		return false, err
	}
	return len(clientIds) > 0, nil
}

func (c *Connection) IsUidsOnline(ctx context.Context, uids []string) (map[string]bool, error) {
	byUid, err := c.BatchGetClientIdByUid(ctx, uids)
	if err != nil {
		return nil, err
	}
	online := make(map[string]bool, len(uids))
	for _, uid := range uids {
		online[uid] = len(byUid[uid]) > 0
	}
	return online, nil
}

// GetSession reads the session of clientId from its Gateway. found is false when the id does not
// decode or the Gateway no longer knows the connection.
func (c *Connection) GetSession(ctx context.Context, clientId string) (value.Value, bool, error) {
	address, connectionId, err := c.resolve(ctx, "GetSession", clientId)
	if err != nil {
		var missing *errors.MissingRequestContext
		if goerrs.As(err, &missing) {
			return value.Null(), false, err
		}
		c.log.Debug("GetSession on an unresolvable client id", zap.String("client_id", clientId), zap.Error(err))
		return value.Null(), false, nil
	}
	reply, err := c.transport.SendAndReceive(ctx, address, &gatewaymsg.Frame{
		Cmd:          gatewaymsg.Command_GetSessionByClientId,
		ConnectionId: connectionId,
	})
	if err != nil {
		return value.Null(), false, err
	}
	if reply.IsNull() {
		return value.Null(), false, nil
	}
	return c.decodeSession(reply), true, nil
}

func (c *Connection) GetAllClientSessions(ctx context.Context) (map[string]value.Value, error) {
	return c.clientSessions(ctx, &gatewaymsg.Frame{Cmd: gatewaymsg.Command_GetAllClientSessions})
}

func (c *Connection) GetClientSessionsByGroup(ctx context.Context, group string) (map[string]value.Value, error) {
	if group == "" {
		return map[string]value.Value{}, nil
	}
	return c.clientSessions(ctx, &gatewaymsg.Frame{
		Cmd:     gatewaymsg.Command_GetClientSessionsByGroup,
		ExtData: []byte(group),
	})
}

// clientSessions gathers {connection_id: encoded session} replies. The current client's entry comes
// from the request context, which may hold writes the Gateway has not applied yet.
func (c *Connection) clientSessions(ctx context.Context, frame *gatewaymsg.Frame) (map[string]value.Value, error) {
	replies, err := c.collect(ctx, frame)
	if err != nil {
		return nil, err
	}
	rc, hasCurrent := requestctx.FromContext(ctx)

	sessions := map[string]value.Value{}
	for address, reply := range replies {
		c.forEachConnection(address, reply, func(clientId string, raw value.Value) {
			if hasCurrent && clientId == rc.ClientId {
				sessions[clientId] = rc.Session()
				return
			}
			sessions[clientId] = c.decodeSession(raw)
		})
	}
	return sessions, nil
}

func (c *Connection) GetAllClientIdCount(ctx context.Context) (int, error) {
	return c.GetClientIdCountByGroup(ctx, "")
}

// GetClientIdCountByGroup counts connections in group across the fleet, or all connections when
// group is empty.
func (c *Connection) GetClientIdCountByGroup(ctx context.Context, group string) (int, error) {
	frame := &gatewaymsg.Frame{Cmd: gatewaymsg.Command_GetClientCountByGroup}
	if group != "" {
		frame.ExtData = []byte(group)
	}
	replies, err := c.collect(ctx, frame)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, reply := range replies {
		if n, ok := reply.AsInt(); ok {
			total += int(n)
		}
	}
	return total, nil
}

func (c *Connection) GetAllClientIdList(ctx context.Context) ([]string, error) {
	infos, err := c.Select(ctx, []string{FieldUid}, SelectFilter{})
	if err != nil {
		return nil, err
	}
	return clientIdsOf(infos), nil
}

func (c *Connection) GetClientIdListByGroup(ctx context.Context, groups ...string) ([]string, error) {
	if len(groups) == 0 {
		return []string{}, nil
	}
	infos, err := c.Select(ctx, []string{FieldUid}, SelectFilter{Groups: groups})
	if err != nil {
		return nil, err
	}
	return clientIdsOf(infos), nil
}

func clientIdsOf(infos []ConnectionInfo) []string {
	set := utils.StringSet{}
	for _, info := range infos {
		set.Add(info.ClientId)
	}
	return set.Sorted()
}

func uidsOf(infos []ConnectionInfo) []string {
	set := utils.StringSet{}
	for _, info := range infos {
		if info.Uid != "" {
			set.Add(info.Uid)
		}
	}
	return set.Sorted()
}

// GetClientIdByUid lists the clients bound to uid on every Gateway.
func (c *Connection) GetClientIdByUid(ctx context.Context, uid string) ([]string, error) {
	replies, err := c.collect(ctx, &gatewaymsg.Frame{
		Cmd:     gatewaymsg.Command_GetClientIdByUid,
		ExtData: []byte(uid),
	})
	if err != nil {
		return nil, err
	}
	set := utils.StringSet{}
	for address, reply := range replies {
		c.forEachConnection(address, flipConnectionList(reply), func(clientId string, _ value.Value) {
			set.Add(clientId)
		})
	}
	return set.Sorted(), nil
}

// BatchGetClientIdByUid maps each uid to its bound clients. Uids with no client are absent.
func (c *Connection) BatchGetClientIdByUid(ctx context.Context, uids []string) (map[string][]string, error) {
	if len(uids) == 0 {
		return map[string][]string{}, nil
	}
	ext, err := jsonExt(value.Strings(uids...))
	if err != nil {
		return nil, err
	}
	replies, err := c.collect(ctx, &gatewaymsg.Frame{
		Cmd:     gatewaymsg.Command_BatchGetClientIdByUid,
		ExtData: ext,
	})
	if err != nil {
		return nil, err
	}

	byUid := utils.StringSetIndex{}
	for address, reply := range replies {
		for _, e := range reply.Entries() {
			uid, ok := e.Key.AsString()
			if !ok {
				continue
			}
			c.forEachConnection(address, flipConnectionList(e.Value), func(clientId string, _ value.Value) {
				byUid.Add(uid, clientId)
			})
		}
	}
	return byUid.Lists(), nil
}

// flipConnectionList turns a list of connection ids into the {connection_id: _} shape that
// forEachConnection walks.
func flipConnectionList(list value.Value) value.Value {
	items := list.Items()
	entries := make([]value.Entry, 0, len(items))
	for _, item := range items {
		if id, ok := item.AsInt(); ok {
			entries = append(entries, value.IntPair(id, value.Null()))
		}
	}
	return value.Map(entries...)
}

// GetUidByClientId returns the uid bound to clientId. found is false when the client is gone or
// has no uid.
func (c *Connection) GetUidByClientId(ctx context.Context, clientId string) (string, bool, error) {
	if rc, has := requestctx.FromContext(ctx); has && rc.Targets(clientId) {
		clientId = rc.ClientId
	}
	if clientId == "" {
		return "", false, nil
	}
	infos, err := c.Select(ctx, []string{FieldUid}, SelectFilter{ClientIds: []string{clientId}})
	if err != nil {
		return "", false, err
	}
	for _, info := range infos {
		if info.ClientId == clientId && info.Uid != "" {
			return info.Uid, true, nil
		}
	}
	return "", false, nil
}

func (c *Connection) GetAllUidList(ctx context.Context) ([]string, error) {
	infos, err := c.Select(ctx, []string{FieldUid}, SelectFilter{})
	if err != nil {
		return nil, err
	}
	return uidsOf(infos), nil
}

func (c *Connection) GetAllUidCount(ctx context.Context) (int, error) {
	uids, err := c.GetAllUidList(ctx)
	return len(uids), err
}

func (c *Connection) GetUidListByGroup(ctx context.Context, groups ...string) ([]string, error) {
	if len(groups) == 0 {
		return []string{}, nil
	}
	infos, err := c.Select(ctx, []string{FieldUid}, SelectFilter{Groups: groups})
	if err != nil {
		return nil, err
	}
	return uidsOf(infos), nil
}

func (c *Connection) GetUidCountByGroup(ctx context.Context, groups ...string) (int, error) {
	uids, err := c.GetUidListByGroup(ctx, groups...)
	return len(uids), err
}

func (c *Connection) GetAllGroupIdList(ctx context.Context) ([]string, error) {
	replies, err := c.collect(ctx, &gatewaymsg.Frame{Cmd: gatewaymsg.Command_GetGroupIdList})
	if err != nil {
		return nil, err
	}
	set := utils.StringSet{}
	for _, reply := range replies {
		set.AddAll(reply.StringItems()...)
	}
	return set.Sorted(), nil
}

func (c *Connection) GetAllGroupUidList(ctx context.Context) (map[string][]string, error) {
	infos, err := c.Select(ctx, []string{FieldUid, FieldGroups}, SelectFilter{})
	if err != nil {
		return nil, err
	}
	return groupIndex(infos, func(info ConnectionInfo) string { return info.Uid }).Lists(), nil
}

func (c *Connection) GetAllGroupUidCount(ctx context.Context) (map[string]int, error) {
	infos, err := c.Select(ctx, []string{FieldUid, FieldGroups}, SelectFilter{})
	if err != nil {
		return nil, err
	}
	return groupIndex(infos, func(info ConnectionInfo) string { return info.Uid }).Counts(), nil
}

func (c *Connection) GetAllGroupClientIdList(ctx context.Context) (map[string][]string, error) {
	infos, err := c.Select(ctx, []string{FieldGroups}, SelectFilter{})
	if err != nil {
		return nil, err
	}
	return groupIndex(infos, func(info ConnectionInfo) string { return info.ClientId }).Lists(), nil
}

func (c *Connection) GetAllGroupClientIdCount(ctx context.Context) (map[string]int, error) {
	infos, err := c.Select(ctx, []string{FieldGroups}, SelectFilter{})
	if err != nil {
		return nil, err
	}
	return groupIndex(infos, func(info ConnectionInfo) string { return info.ClientId }).Counts(), nil
}

// groupIndex files member(info) under each group of each connection. Connections without a member
// (no uid bound) and empty group names are skipped.
func groupIndex(infos []ConnectionInfo, member func(ConnectionInfo) string) utils.StringSetIndex {
	idx := utils.StringSetIndex{}
	for _, info := range infos {
		m := member(info)
		if m == "" {
			continue
		}
		for _, group := range info.Groups {
			if group == "" {
				continue
			}
			idx.Add(group, m)
		}
	}
	return idx
}

// Select queries connection details across the fleet.
//
// When the filter names client ids and nothing else, only the Gateways owning those ids are asked,
// each for its own connection ids. With other filters as well every Gateway is asked, and the
// owning ones still get their connection ids as a hint.
func (c *Connection) Select(ctx context.Context, fields []string, filter SelectFilter) ([]ConnectionInfo, error) {
	where := []value.Entry{}
	if len(filter.Groups) > 0 {
		where = append(where, value.Pair("groups", value.Strings(filter.Groups...)))
	}
	if len(filter.Uids) > 0 {
		where = append(where, value.Pair("uid", value.Strings(filter.Uids...)))
	}
	query := func(extraWhere ...value.Entry) ([]byte, error) {
		return jsonExt(value.Map(
			value.Pair("fields", value.Strings(fields...)),
			value.Pair("where", value.Map(append(append([]value.Entry{}, where...), extraWhere...)...)),
		))
	}

	var replies map[string]value.Value
	if len(filter.ClientIds) == 0 {
		ext, err := query()
		if err != nil {
			return nil, err
		}
		replies, err = c.collect(ctx, &gatewaymsg.Frame{Cmd: gatewaymsg.Command_Select, ExtData: ext})
		if err != nil {
			return nil, err
		}
	} else {
		grouped := c.groupByAddress(filter.ClientIds)
		frames := make(map[string]*gatewaymsg.Frame, len(grouped.order))
		for _, address := range grouped.order {
			ext, err := query(value.Pair("connection_id", connectionSet(grouped.ids[address])))
			if err != nil {
				return nil, err
			}
			frames[address] = &gatewaymsg.Frame{Cmd: gatewaymsg.Command_Select, ExtData: ext}
		}

		if len(where) > 0 {
			addresses, err := c.directory.Addresses(ctx)
			if err != nil {
				return nil, err
			}
			ext, err := query()
			if err != nil {
				return nil, err
			}
			for _, address := range addresses {
				if _, has := frames[address]; !has {
					frames[address] = &gatewaymsg.Frame{Cmd: gatewaymsg.Command_Select, ExtData: ext}
				}
			}
		}
		if len(frames) == 0 {
			return []ConnectionInfo{}, nil
		}
		replies = c.transport.SendAndCollect(ctx, frames)
	}

	infos := []ConnectionInfo{}
	for address, reply := range replies {
		c.forEachConnection(address, reply, func(clientId string, item value.Value) {
			info := ConnectionInfo{ClientId: clientId, Gateway: address}
			if uid, has := item.Get(FieldUid); has && !uid.IsNull() {
				info.Uid, _ = uid.AsString()
			}
			if groups, has := item.Get(FieldGroups); has {
				info.Groups = groups.StringItems()
			}
			if session, has := item.Get(FieldSession); has {
				info.Session = c.decodeSession(session)
			}
			infos = append(infos, info)
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ClientId < infos[j].ClientId })
	return infos, nil
}
