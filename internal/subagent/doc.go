// Package subagent 提供四个专项分析器（gas、安全、MEV、状态）以及并发调度它们的
// Coordinator。分析器之间不共享可变状态，单个分析器的失败会被隔离为一条
// category=error 的结论。
package subagent
