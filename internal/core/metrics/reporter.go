package metrics

// 丢包原因
const (
	DropInvalidStamp = "invalid_stamp"
	DropMissingStamp = "missing_stamp"
	DropTTL          = "ttl"
	DropEcho         = "echo"
	DropNoRoute      = "no_route"
	DropRateLimited  = "rate_limited"
	DropRelayOff     = "relay_disabled"
	DropDecode       = "decode"
	DropUnhandled    = "unhandled"
)

// 包类型
const (
	KindDirect    = "direct"
	KindBroadcast = "broadcast"
	KindExchange  = "exchange"
	KindReply     = "reply"
	KindRelay     = "relay"
)

// 交换结果
const (
	OutcomeSuccess  = "success"
	OutcomeFailed   = "failed"
	OutcomeTimedOut = "timedout"
)

// Reporter 记录路由层事件
type Reporter interface {
	PacketReceived(kind string, bytes int)
	PacketSent(kind string, bytes int)
	PacketDropped(reason string)

	ConnectionOpened(transport, direction string)
	ConnectionClosed(transport string)
	SetConnections(n int)

	SetPendingExchanges(n int)
	ExchangeResolved(outcome string, n uint64)

	SetPeers(state string, n int)
}

// Nop 不记录任何内容
type Nop struct{}

var _ Reporter = Nop{}

func (Nop) PacketReceived(string, int) {}
func (Nop) PacketSent(string, int) {}
func (Nop) PacketDropped(string) {}
func (Nop) ConnectionOpened(string, string) {}
func (Nop) ConnectionClosed(string) {}
func (Nop) SetConnections(int) {}
func (Nop) SetPendingExchanges(int) {}
func (Nop) ExchangeResolved(string, uint64) {}
func (Nop) SetPeers(string, int) {}
