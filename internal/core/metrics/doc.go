// Package metrics 导出路由层指标
//
// Reporter 是各组件记录事件的接口，Prometheus 实现注册到调用方提供的 Registerer；
// 指标关闭时使用 Nop。
//
// 指标列表（前缀为配置的 namespace）:
//
//	packets_received_total{kind}
//	packets_sent_total{kind}
//	packets_dropped_total{reason}
//	bytes_received_total / bytes_sent_total
//	connections_opened_total{transport,direction} / connections_closed_total{transport}
//	connections (gauge)
//	exchanges_pending (gauge)
//	exchanges_resolved_total{outcome}
//	peers{state} (gauge)
package metrics
