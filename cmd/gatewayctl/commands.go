package main

import (
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sessamekesh/gateway-client/pkg/gateway"
	gatewaymsg "github.com/sessamekesh/gateway-client/pkg/message/gateway"
	"github.com/sessamekesh/gateway-client/pkg/message/value"
	"go.uber.org/zap"
)

type AddressesCommand struct{}

func (c *AddressesCommand) Run(s *Session) error {
	ctx, cancel := s.request()
	defer cancel()

	addresses, err := s.conn.Addresses(ctx)
	if err != nil {
		return err
	}
	s.printList(addresses)
	return nil
}

type MessageArgs struct {
	Message string `arg:"" help:"Message body."`
	Json    bool   `help:"Parse the message as JSON and send it as a structured body."`
}

func (m MessageArgs) body() (gatewaymsg.Body, error) {
	if !m.Json {
		return gatewaymsg.Text(m.Message), nil
	}
	v, err := value.JSONCodec{}.Decode([]byte(m.Message))
	if err != nil {
		return gatewaymsg.Body{}, err
	}
	return gatewaymsg.Structured(v), nil
}

type SendCommand struct {
	ClientId string `arg:"" help:"Target client id."`

	MessageArgs `embed:""`
}

func (c *SendCommand) Run(s *Session) error {
	body, err := c.body()
	if err != nil {
		return err
	}
	ctx, cancel := s.request()
	defer cancel()
	return s.conn.SendToClient(ctx, c.ClientId, body)
}

type BroadcastCommand struct {
	MessageArgs `embed:""`

	Group   []string `help:"Only send to members of these groups." sep:","`
	Uid     []string `help:"Only send to clients bound to these uids." sep:","`
	Exclude []string `help:"Client ids to leave out." sep:","`
	Raw     bool     `help:"Push the body without the Gateway protocol encoder."`
}

func (c *BroadcastCommand) Run(s *Session) error {
	body, err := c.body()
	if err != nil {
		return err
	}
	ctx, cancel := s.request()
	defer cancel()

	switch {
	case len(c.Group) > 0:
		return s.conn.SendToGroup(ctx, c.Group, body, gateway.GroupSendOptions{ExcludeClientIds: c.Exclude, Raw: c.Raw})
	case len(c.Uid) > 0:
		return s.conn.SendToUid(ctx, c.Uid, body)
	}
	return s.conn.SendToAll(ctx, body, gateway.BroadcastOptions{ExcludeClientIds: c.Exclude, Raw: c.Raw})
}

type OnlineCommand struct {
	Ids []string `arg:"" help:"Client ids, or uids with --uid."`
	Uid bool     `help:"Treat the arguments as uids."`
}

func (c *OnlineCommand) Run(s *Session) error {
	ctx, cancel := s.request()
	defer cancel()

	if c.Uid {
		online, err := s.conn.IsUidsOnline(ctx, c.Ids)
		if err != nil {
			return err
		}
		for _, uid := range c.Ids {
			s.println(uid, online[uid])
		}
		return nil
	}
	for _, id := range c.Ids {
		online, err := s.conn.IsOnline(ctx, id)
		if err != nil {
			return err
		}
		s.println(id, online)
	}
	return nil
}

type CountCommand struct {
	Group string `help:"Only count members of this group."`
	Uids  bool   `help:"Count distinct uids instead of clients."`
}

func (c *CountCommand) Run(s *Session) error {
	ctx, cancel := s.request()
	defer cancel()

	var count int
	var err error
	switch {
	case c.Uids && c.Group != "":
		count, err = s.conn.GetUidCountByGroup(ctx, c.Group)
	case c.Uids:
		count, err = s.conn.GetAllUidCount(ctx)
	default:
		count, err = s.conn.GetClientIdCountByGroup(ctx, c.Group)
	}
	if err != nil {
		return err
	}
	s.println(count)
	return nil
}

type SessionsCommand struct {
	Group    string `help:"Only members of this group."`
	ClientId string `help:"A single client."`
}

func (c *SessionsCommand) Run(s *Session) error {
	ctx, cancel := s.request()
	defer cancel()

	if c.ClientId != "" {
		session, found, err := s.conn.GetSession(ctx, c.ClientId)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("client %s is not connected", c.ClientId)
		}
		return s.printJSON(session)
	}

	var sessions map[string]value.Value
	var err error
	if c.Group != "" {
		sessions, err = s.conn.GetClientSessionsByGroup(ctx, c.Group)
	} else {
		sessions, err = s.conn.GetAllClientSessions(ctx)
	}
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(sessions))
	for id := range sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	entries := make([]value.Entry, 0, len(ids))
	for _, id := range ids {
		entries = append(entries, value.Pair(id, sessions[id]))
	}
	return s.printJSON(value.Map(entries...))
}

func (s *Session) printJSON(v value.Value) error {
	buf, err := value.JSONCodec{}.Encode(v)
	if err != nil {
		return err
	}
	s.println(string(buf))
	return nil
}

type KickCommand struct {
	ClientId string `arg:"" help:"Client to close."`
	Message  string `arg:"" optional:"" help:"Last message sent before closing."`
}

func (c *KickCommand) Run(s *Session) error {
	ctx, cancel := s.request()
	defer cancel()
	return s.conn.CloseClient(ctx, c.ClientId, gatewaymsg.Text(c.Message))
}

type DestroyCommand struct {
	ClientId string `arg:"" help:"Client to drop."`
}

func (c *DestroyCommand) Run(s *Session) error {
	ctx, cancel := s.request()
	defer cancel()
	return s.conn.DestroyClient(ctx, c.ClientId)
}

type GroupsCommand struct {
	Counts bool `help:"Print the number of distinct uids in each group."`
}

func (c *GroupsCommand) Run(s *Session) error {
	ctx, cancel := s.request()
	defer cancel()

	if !c.Counts {
		groups, err := s.conn.GetAllGroupIdList(ctx)
		if err != nil {
			return err
		}
		s.printList(groups)
		return nil
	}

	counts, err := s.conn.GetAllGroupUidCount(ctx)
	if err != nil {
		return err
	}
	groups := make([]string, 0, len(counts))
	for group := range counts {
		groups = append(groups, group)
	}
	sort.Strings(groups)
	for _, group := range groups {
		s.println(group, counts[group])
	}
	return nil
}

type UidsCommand struct {
	Group []string `help:"Only uids with a client in one of these groups." sep:","`
}

func (c *UidsCommand) Run(s *Session) error {
	ctx, cancel := s.request()
	defer cancel()

	var uids []string
	var err error
	if len(c.Group) > 0 {
		uids, err = s.conn.GetUidListByGroup(ctx, c.Group...)
	} else {
		uids, err = s.conn.GetAllUidList(ctx)
	}
	if err != nil {
		return err
	}
	s.printList(uids)
	return nil
}

type WatchCommand struct {
	Interval       time.Duration `help:"Time between polls." default:"10s"`
	MetricsAddress string        `help:"Serve /metrics on this address. Empty disables it." default:":9464"`
}

func (c *WatchCommand) Run(s *Session) error {
	if c.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(s.promReg, promhttp.HandlerOpts{}))
		server := &http.Server{Addr: c.MetricsAddress, Handler: mux}
		go func() {
			s.log.Info("Serving metrics", zap.String("address", c.MetricsAddress))
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				s.log.Error("Metrics server stopped", zap.Error(err))
			}
		}()
		defer server.Close()
	}

	ticker := time.NewTicker(c.Interval)
	defer ticker.Stop()
	for {
		c.poll(s)
		select {
		case <-s.ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (c *WatchCommand) poll(s *Session) {
	ctx, cancel := s.request()
	defer cancel()

	addresses, err := s.conn.Addresses(ctx)
	if err != nil {
		s.log.Warn("Register unreachable", zap.Error(err))
		return
	}
	clients, err := s.conn.GetAllClientIdCount(ctx)
	if err != nil {
		s.log.Warn("Client count failed", zap.Error(err))
		return
	}
	groups, err := s.conn.GetAllGroupIdList(ctx)
	if err != nil {
		s.log.Warn("Group listing failed", zap.Error(err))
		return
	}
	s.log.Info("Fleet status",
		zap.Int("gateways", len(addresses)),
		zap.Int("clients", clients),
		zap.Int("groups", len(groups)))
}
