// Package config 负责加载 dexterd 的 JSON 配置文件并补齐默认值。
package config
