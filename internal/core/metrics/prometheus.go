package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
)

// DefaultNamespace 默认指标前缀
const DefaultNamespace = "muddle"

// Prometheus 基于 client_golang 的 Reporter
type Prometheus struct {
	packetsRx   *prometheus.CounterVec
	packetsTx   *prometheus.CounterVec
	dropped     *prometheus.CounterVec
	bytesRx     prometheus.Counter
	bytesTx     prometheus.Counter
	connOpened  *prometheus.CounterVec
	connClosed  *prometheus.CounterVec
	connections prometheus.Gauge
	pending     prometheus.Gauge
	resolved    *prometheus.CounterVec
	peers       *prometheus.GaugeVec
}

var _ Reporter = (*Prometheus)(nil)

// NewPrometheus 创建并注册全部指标
func NewPrometheus(namespace string, reg prometheus.Registerer) (*Prometheus, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	p := &Prometheus{
		packetsRx: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_received_total",
			Help:      "Packets received from connections.",
		}, []string{"kind"}),
		packetsTx: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_sent_total",
			Help:      "Packets written to connections.",
		}, []string{"kind"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_dropped_total",
			Help:      "Packets dropped by the router.",
		}, []string{"reason"}),
		bytesRx: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_received_total",
			Help:      "Packet bytes received.",
		}),
		bytesTx: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_sent_total",
			Help:      "Packet bytes sent.",
		}),
		connOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_opened_total",
			Help:      "Connections attached to the node.",
		}, []string{"transport", "direction"}),
		connClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_closed_total",
			Help:      "Connections removed from the node.",
		}, []string{"transport"}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Currently registered connections.",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "exchanges_pending",
			Help:      "Exchanges waiting for a reply.",
		}),
		resolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exchanges_resolved_total",
			Help:      "Exchanges resolved, by outcome.",
		}, []string{"outcome"}),
		peers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "peers",
			Help:      "Configured peers, by connection state.",
		}, []string{"state"}),
	}

	var err error
	for _, c := range []prometheus.Collector{
		p.packetsRx, p.packetsTx, p.dropped, p.bytesRx, p.bytesTx,
		p.connOpened, p.connClosed, p.connections,
		p.pending, p.resolved, p.peers,
	} {
		err = multierr.Append(err, reg.Register(c))
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Prometheus) PacketReceived(kind string, bytes int) {
	p.packetsRx.WithLabelValues(kind).Inc()
	p.bytesRx.Add(float64(bytes))
}

func (p *Prometheus) PacketSent(kind string, bytes int) {
	p.packetsTx.WithLabelValues(kind).Inc()
	p.bytesTx.Add(float64(bytes))
}

func (p *Prometheus) PacketDropped(reason string) {
	p.dropped.WithLabelValues(reason).Inc()
}

func (p *Prometheus) ConnectionOpened(transport, direction string) {
	p.connOpened.WithLabelValues(transport, direction).Inc()
}

func (p *Prometheus) ConnectionClosed(transport string) {
	p.connClosed.WithLabelValues(transport).Inc()
}

func (p *Prometheus) SetConnections(n int) {
	p.connections.Set(float64(n))
}

func (p *Prometheus) SetPendingExchanges(n int) {
	p.pending.Set(float64(n))
}

// ExchangeResolved 累加 n 个结果（调用方按增量上报）
func (p *Prometheus) ExchangeResolved(outcome string, n uint64) {
	if n == 0 {
		return
	}
	p.resolved.WithLabelValues(outcome).Add(float64(n))
}

func (p *Prometheus) SetPeers(state string, n int) {
	p.peers.WithLabelValues(state).Set(float64(n))
}
