package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/sessamekesh/gateway-client/internal/gatewaytest"
	"github.com/sessamekesh/gateway-client/pkg/config"
	gatewaymsg "github.com/sessamekesh/gateway-client/pkg/message/gateway"
	"github.com/sessamekesh/gateway-client/pkg/message/value"
	"go.uber.org/zap"
)

func benchConnection(b *testing.B, gateways int, persistent bool) *Connection {
	addresses := []string{}
	for i := 0; i < gateways; i++ {
		gw := gatewaytest.StartFakeGateway(b, nil)
		gw.ReplyWith(value.Int(10))
		addresses = append(addresses, gw.Address())
	}
	register := gatewaytest.StartFakeRegister(b, addresses...)

	conn, err := CreateConnection(ConnectionParams{
		Name: "bench",
		Config: config.ConnectionConfig{
			RegisterAddress:      []string{register.Address()},
			PersistentConnection: persistent,
		},
		CollectTimeout: time.Second,
		Logger:         zap.NewNop(),
	})
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(conn.Close)
	return conn
}

func BenchmarkCountAcrossEightGateways(b *testing.B) {
	conn := benchConnection(b, 8, false)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		total, err := conn.GetAllClientIdCount(ctx)
		if err != nil || total != 80 {
			b.Fatalf("count: %d, %v", total, err)
		}
	}
}

func BenchmarkBroadcast(b *testing.B) {
	for _, persistent := range []bool{false, true} {
		name := "fresh-sockets"
		if persistent {
			name = "persistent-sockets"
		}
		b.Run(name, func(b *testing.B) {
			conn := benchConnection(b, 4, persistent)
			ctx := context.Background()
			body := gatewaymsg.Text("tick")

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if err := conn.SendToAll(ctx, body, BroadcastOptions{}); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
