// Package rules 实现无状态的单属性校验规则：gas、转账金额、滑点、协议白名单与
// 路径效率。阈值在启动时构造一次，之后只读。
package rules
