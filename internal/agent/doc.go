// Package agent 实现交易的“评估-优化-再评估”闭环：模拟交易、运行规则与子代理评估，
// 对无效交易应用优化策略，直到全部有效或达到最大轮次。
package agent
