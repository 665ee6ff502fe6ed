// Package validation 定义交易评估流程共享的数据模型：交易、目标、模拟结果以及
// 规则引擎、子代理和优化器之间传递的校验结论。
package validation
