// Package optimizer 根据评估器未通过的结论按类别改写交易。每个类别对应一个
// 策略函数，策略依次作用在交易副本上，原始交易不会被修改。
package optimizer
