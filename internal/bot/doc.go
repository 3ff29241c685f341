// Package bot 实现命令层：把固定的 Telegram 命令映射到会话流程，并在
// 字段收集完成后调度钱包、存储与交易编排各层完成操作。
package bot
