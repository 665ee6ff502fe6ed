// Package evaluator 将规则引擎与子代理的结论合并为单笔交易与批次的评估结果。
// 交易有效当且仅当不存在未通过的 critical 结论。
package evaluator
