// Package api 暴露 IBS Care 的 REST 接口：症状日志、AI 对话、自测评估与提醒设置。
// 除 /health、/metrics、/api/auth/verify 与评估题目外，所有路由都要求携带身份令牌。
package api
