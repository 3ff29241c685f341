// Package telegram 实现与 Telegram Bot API 的最小交互：接收 webhook
// 更新与发送文本消息。不引入完整 SDK，命令层只需要这两个能力。
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	xerrors "BondingBot/internal/errors"
)

// Update 是 Telegram 推送的一条更新，只解出我们关心的字段。
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

// Message 是用户发来的一条消息。
type Message struct {
	MessageID int64  `json:"message_id"`
	From      *User  `json:"from"`
	Chat      *Chat  `json:"chat"`
	Text      string `json:"text"`
}

// User 标识消息的发送者。
type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	Username  string `json:"username"`
}

// Chat 标识消息所在的会话。私聊场景下 Chat.ID 与 User.ID 相同。
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

// Client 通过 Bot API 发送消息。
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient 构造 Bot API 客户端。baseURL 通常是 https://api.telegram.org，
// 测试时可指向本地桩服务。
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

type sendMessageRequest struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

// Reply 向用户发送一条文本消息，实现 bot.Replier。
func (c *Client) Reply(ctx context.Context, userID int64, text string) error {
	payload, err := json.Marshal(sendMessageRequest{ChatID: userID, Text: text})
	if err != nil {
		return xerrors.Wrap(xerrors.CodeUnknown, err, "序列化 sendMessage 请求失败")
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return xerrors.Wrap(xerrors.CodeUnknown, err, "构造 sendMessage 请求失败")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeUnknown, err, "调用 Telegram API 失败")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return xerrors.Wrap(xerrors.CodeUnknown, err, "读取 Telegram 响应失败")
	}
	var parsed apiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return xerrors.Wrap(xerrors.CodeUnknown, err, "解析 Telegram 响应失败")
	}
	if !parsed.OK {
		return xerrors.New(xerrors.CodeUnknown,
			fmt.Sprintf("Telegram API 返回错误: %d %s", parsed.ErrorCode, parsed.Description))
	}
	return nil
}

// SetWebhook 向 Telegram 注册 webhook 地址与校验密钥。
func (c *Client) SetWebhook(ctx context.Context, webhookURL, secretToken string) error {
	form := url.Values{}
	form.Set("url", webhookURL)
	if secretToken != "" {
		form.Set("secret_token", secretToken)
	}

	endpoint := fmt.Sprintf("%s/bot%s/setWebhook", c.baseURL, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return xerrors.Wrap(xerrors.CodeUnknown, err, "构造 setWebhook 请求失败")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeUnknown, err, "调用 setWebhook 失败")
	}
	defer resp.Body.Close()

	var parsed apiResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&parsed); err != nil {
		return xerrors.Wrap(xerrors.CodeUnknown, err, "解析 setWebhook 响应失败")
	}
	if !parsed.OK {
		return xerrors.New(xerrors.CodeUnknown,
			fmt.Sprintf("setWebhook 返回错误: %d %s", parsed.ErrorCode, parsed.Description))
	}
	return nil
}
