package gateway

import (
	"context"
	"testing"

	"github.com/sessamekesh/gateway-client/internal/gatewaytest"
	gatewaymsg "github.com/sessamekesh/gateway-client/pkg/message/gateway"
	"github.com/sessamekesh/gateway-client/pkg/message/value"
	"github.com/stretchr/testify/require"
)

func connection(uid value.Value, groups ...string) value.Value {
	return value.Map(value.Pair("uid", uid), value.Pair("groups", value.Strings(groups...)))
}

func TestIsOnline(t *testing.T) {
	f := startFleet(t, 1)
	gw := f.gateways[0]
	gw.Handle(func(frame *gatewaymsg.Frame) (value.Value, bool) {
		return value.Bool(frame.ConnectionId == 1), true
	})
	ctx := context.Background()

	online, err := f.conn.IsOnline(ctx, gw.ClientId(t, 1))
	require.NoError(t, err)
	require.True(t, online)

	online, err = f.conn.IsOnline(ctx, gw.ClientId(t, 2))
	require.NoError(t, err)
	require.False(t, online)

	online, err = f.conn.IsOnline(ctx, "garbage")
	require.NoError(t, err)
	require.False(t, online)
	require.Len(t, gw.Commands(), 2)
}

func TestGetSession(t *testing.T) {
	f := startFleet(t, 1)
	gw := f.gateways[0]
	session := value.Map(value.Pair("name", value.String("ann")))
	gw.Handle(func(frame *gatewaymsg.Frame) (value.Value, bool) {
		if frame.ConnectionId == 1 {
			return value.String(string(phpEncoded(t, session))), true
		}
		return value.Null(), true
	})
	ctx := context.Background()

	got, found, err := f.conn.GetSession(ctx, gw.ClientId(t, 1))
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, session.Equal(got))

	_, found, err = f.conn.GetSession(ctx, gw.ClientId(t, 2))
	require.NoError(t, err)
	require.False(t, found)

	require.Equal(t, gatewaymsg.Command_GetSessionByClientId, gw.Commands()[0].Cmd)
}

func TestGetAllClientSessionsPrefersSnapshot(t *testing.T) {
	f := startFleet(t, 2)
	gw1, gw2 := f.gateways[0], f.gateways[1]
	stored := value.Map(value.Pair("n", value.Int(1)))
	gw1.ReplyWith(value.Map(
		value.IntPair(1, value.String(string(phpEncoded(t, stored)))),
		value.IntPair(2, value.String(string(phpEncoded(t, stored)))),
	))
	gw2.ReplyWith(value.Map(value.IntPair(5, value.String(""))))
	fresh := value.Map(value.Pair("n", value.Int(99)))
	ctx, _ := withCurrentClient(t, gw1, 2, fresh)

	sessions, err := f.conn.GetAllClientSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 3)
	require.True(t, stored.Equal(sessions[gw1.ClientId(t, 1)]))
	require.True(t, fresh.Equal(sessions[gw1.ClientId(t, 2)]))
	require.True(t, value.Map().Equal(sessions[gw2.ClientId(t, 5)]))
	require.Equal(t, gatewaymsg.Command_GetAllClientSessions, gw1.Commands()[0].Cmd)
}

func TestGetClientSessionsByGroup(t *testing.T) {
	f := startFleet(t, 1)
	gw := f.gateways[0]
	gw.ReplyWith(value.Map(value.IntPair(4, value.String(""))))
	ctx := context.Background()

	sessions, err := f.conn.GetClientSessionsByGroup(ctx, "")
	require.NoError(t, err)
	require.Empty(t, sessions)
	require.Zero(t, f.register.QueryCount())

	sessions, err = f.conn.GetClientSessionsByGroup(ctx, "room")
	require.NoError(t, err)
	require.Contains(t, sessions, gw.ClientId(t, 4))
	frame := gw.Commands()[0]
	require.Equal(t, gatewaymsg.Command_GetClientSessionsByGroup, frame.Cmd)
	require.Equal(t, "room", string(frame.ExtData))
}

func TestCountsSumAcrossGateways(t *testing.T) {
	f := startFleet(t, 2)
	f.gateways[0].ReplyWith(value.Int(3))
	f.gateways[1].ReplyWith(value.String("4"))
	ctx := context.Background()

	total, err := f.conn.GetAllClientIdCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 7, total)
	require.Empty(t, f.gateways[0].Commands()[0].ExtData)

	total, err = f.conn.GetClientIdCountByGroup(ctx, "room")
	require.NoError(t, err)
	require.Equal(t, 7, total)
	require.Equal(t, "room", string(f.gateways[0].Commands()[1].ExtData))
}

func TestCountIgnoresHungGateway(t *testing.T) {
	f := startFleet(t, 2)
	f.gateways[0].ReplyWith(value.Int(3))
	f.gateways[1].Hang()

	total, err := f.conn.GetAllClientIdCount(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, total)
}

func TestGetClientIdByUid(t *testing.T) {
	f := startFleet(t, 2)
	gw1, gw2 := f.gateways[0], f.gateways[1]
	gw1.ReplyWith(value.List(value.Int(2), value.Int(1)))
	gw2.ReplyWith(value.List())

	ids, err := f.conn.GetClientIdByUid(context.Background(), "u1")
	require.NoError(t, err)
	expected := []string{gw1.ClientId(t, 1), gw1.ClientId(t, 2)}
	require.ElementsMatch(t, expected, ids)
	require.Equal(t, "u1", string(gw1.Commands()[0].ExtData))

	online, err := f.conn.IsUidOnline(context.Background(), "u1")
	require.NoError(t, err)
	require.True(t, online)
}

func TestBatchGetClientIdByUid(t *testing.T) {
	f := startFleet(t, 2)
	gw1, gw2 := f.gateways[0], f.gateways[1]
	gw1.ReplyWith(value.Map(value.Pair("u1", value.List(value.Int(1)))))
	gw2.ReplyWith(value.Map(
		value.Pair("u1", value.List(value.Int(4))),
		value.Pair("u2", value.List(value.Int(5))),
	))
	ctx := context.Background()

	byUid, err := f.conn.BatchGetClientIdByUid(ctx, []string{"u1", "u2", "u3"})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{gw1.ClientId(t, 1), gw2.ClientId(t, 4)}, byUid["u1"])
	require.Equal(t, []string{gw2.ClientId(t, 5)}, byUid["u2"])
	require.NotContains(t, byUid, "u3")
	require.Equal(t, `["u1","u2","u3"]`, string(gw1.Commands()[0].ExtData))

	online, err := f.conn.IsUidsOnline(ctx, []string{"u1", "u3"})
	require.NoError(t, err)
	require.Equal(t, map[string]bool{"u1": true, "u3": false}, online)
}

func TestSelectByClientIdOnlyContactsOwners(t *testing.T) {
	f := startFleet(t, 2)
	gw1, gw2 := f.gateways[0], f.gateways[1]
	gw1.ReplyWith(value.Map(value.IntPair(3, connection(value.String("u1")))))
	gw2.ReplyWith(value.Map())

	infos, err := f.conn.Select(context.Background(), []string{FieldUid}, SelectFilter{
		ClientIds: []string{gw1.ClientId(t, 3), "garbage"},
	})
	require.NoError(t, err)
	require.Equal(t, []ConnectionInfo{{
		ClientId: gw1.ClientId(t, 3),
		Gateway:  gw1.Address(),
		Uid:      "u1",
		Groups:   []string{},
	}}, infos)

	require.Equal(t, `{"fields":["uid"],"where":{"connection_id":{"3":3}}}`, string(gw1.Commands()[0].ExtData))
	require.Empty(t, gw2.Commands())
	require.Zero(t, f.register.QueryCount())
}

func TestSelectWithOtherFiltersContactsEveryGateway(t *testing.T) {
	f := startFleet(t, 2)
	gw1, gw2 := f.gateways[0], f.gateways[1]
	gw1.ReplyWith(value.Map())
	gw2.ReplyWith(value.Map())

	_, err := f.conn.Select(context.Background(), []string{FieldUid}, SelectFilter{
		ClientIds: []string{gw1.ClientId(t, 3)},
		Groups:    []string{"g"},
	})
	require.NoError(t, err)

	require.Equal(t, `{"fields":["uid"],"where":{"groups":["g"],"connection_id":{"3":3}}}`, string(gw1.Commands()[0].ExtData))
	require.Equal(t, `{"fields":["uid"],"where":{"groups":["g"]}}`, string(gw2.Commands()[0].ExtData))
}

func selectFleet(t *testing.T) (*testFleet, *gatewaytest.FakeGateway, *gatewaytest.FakeGateway) {
	f := startFleet(t, 2)
	gw1, gw2 := f.gateways[0], f.gateways[1]
	gw1.ReplyWith(value.Map(
		value.IntPair(1, connection(value.String("u1"), "a", "b")),
		value.IntPair(2, connection(value.Null(), "a")),
	))
	gw2.ReplyWith(value.Map(
		value.IntPair(7, connection(value.String("u2"), "a", "")),
		value.IntPair(8, connection(value.String("u1"))),
	))
	return f, gw1, gw2
}

func TestListsBuiltFromSelect(t *testing.T) {
	f, gw1, gw2 := selectFleet(t)
	ctx := context.Background()

	uids, err := f.conn.GetAllUidList(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"u1", "u2"}, uids)

	count, err := f.conn.GetAllUidCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	ids, err := f.conn.GetAllClientIdList(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{gw1.ClientId(t, 1), gw1.ClientId(t, 2), gw2.ClientId(t, 7), gw2.ClientId(t, 8)}, ids)

	byGroup, err := f.conn.GetAllGroupUidList(ctx)
	require.NoError(t, err)
	require.Equal(t, map[string][]string{"a": {"u1", "u2"}, "b": {"u1"}}, byGroup)

	counts, err := f.conn.GetAllGroupUidCount(ctx)
	require.NoError(t, err)
	require.Equal(t, map[string]int{"a": 2, "b": 1}, counts)

	clientCounts, err := f.conn.GetAllGroupClientIdCount(ctx)
	require.NoError(t, err)
	require.Equal(t, map[string]int{"a": 3, "b": 1}, clientCounts)

	clientsByGroup, err := f.conn.GetAllGroupClientIdList(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{gw1.ClientId(t, 1), gw1.ClientId(t, 2), gw2.ClientId(t, 7)}, clientsByGroup["a"])
}

func TestGroupListsSendGroupFilter(t *testing.T) {
	f, gw1, _ := selectFleet(t)
	ctx := context.Background()

	empty, err := f.conn.GetUidListByGroup(ctx)
	require.NoError(t, err)
	require.Empty(t, empty)
	require.Zero(t, f.register.QueryCount())

	count, err := f.conn.GetUidCountByGroup(ctx, "a", "b")
	require.NoError(t, err)
	require.Equal(t, 2, count)
	require.Equal(t, `{"fields":["uid"],"where":{"groups":["a","b"]}}`, string(gw1.Commands()[0].ExtData))

	ids, err := f.conn.GetClientIdListByGroup(ctx, "a")
	require.NoError(t, err)
	require.Len(t, ids, 4)
}

func TestGetUidByClientId(t *testing.T) {
	f := startFleet(t, 1)
	gw := f.gateways[0]
	gw.Handle(func(frame *gatewaymsg.Frame) (value.Value, bool) {
		return value.Map(value.IntPair(6, connection(value.String("u6")))), true
	})
	ctx := context.Background()

	uid, found, err := f.conn.GetUidByClientId(ctx, gw.ClientId(t, 6))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "u6", uid)

	_, found, err = f.conn.GetUidByClientId(ctx, gw.ClientId(t, 7))
	require.NoError(t, err)
	require.False(t, found)
}

func TestGetAllGroupIdList(t *testing.T) {
	f := startFleet(t, 2)
	f.gateways[0].ReplyWith(value.Strings("b", "a"))
	f.gateways[1].ReplyWith(value.Strings("a", "c"))

	groups, err := f.conn.GetAllGroupIdList(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, groups)
	require.Equal(t, gatewaymsg.Command_GetGroupIdList, f.gateways[0].Commands()[0].Cmd)
}

func TestAddressesComeFromRegister(t *testing.T) {
	f := startFleet(t, 2)

	addresses, err := f.conn.Addresses(context.Background())
	require.NoError(t, err)
	require.ElementsMatch(t, []string{f.gateways[0].Address(), f.gateways[1].Address()}, addresses)
}
