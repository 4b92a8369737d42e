package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/sync/singleflight"
	"smspanel/panel/common/config"
	"smspanel/panel/common/logx"
)

var gwLog = logx.New(logx.WithPrefix("gateway"))

// ConnectorStatus：网关侧一个 SMPP 连接器的运行态
type ConnectorStatus struct {
	Cid       string `json:"cid"`
	Status    string `json:"status"`
	LastError string `json:"last_error"`
	Sessions  int    `json:"sessions"`
}

type SubmitRequest struct {
	Cid     string `json:"cid"`
	From    string `json:"from"`
	To      string `json:"to"`
	Content string `json:"content"`
}

type SubmitResult struct {
	MessageId string `json:"message_id"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

// Client：外部 SMS 网关的 HTTP 客户端。面板从不自己绑 SMPP，
// 起停/提交都转给网关；所有调用带超时，错误原样上抛。
type Client struct {
	base     string
	username string
	password string
	hc       *http.Client

	// 状态查询是轮询+页面双入口，singleflight 合并并发请求
	sf singleflight.Group
}

func NewClient(cfg config.GatewayConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		base:     strings.TrimRight(cfg.BaseURL, "/"),
		username: cfg.Username,
		password: cfg.Password,
		hc:       &http.Client{Timeout: timeout},
	}
}

func (c *Client) Configured() bool { return c.base != "" }

// Status：全部连接器状态。并发调用合并成一次网关请求。
func (c *Client) Status(ctx context.Context) ([]ConnectorStatus, error) {
	v, err, shared := c.sf.Do("status", func() (any, error) {
		var out []ConnectorStatus
		if err := c.do(ctx, http.MethodGet, "/api/connectors", nil, &out); err != nil {
			return nil, err
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		gwLog.Debugf("status request coalesced")
	}
	return v.([]ConnectorStatus), nil
}

func (c *Client) StartConnector(ctx context.Context, cid string) error {
	return c.do(ctx, http.MethodPost, "/api/connectors/"+cid+"/start", nil, nil)
}

func (c *Client) StopConnector(ctx context.Context, cid string) error {
	return c.do(ctx, http.MethodPost, "/api/connectors/"+cid+"/stop", nil, nil)
}

// Submit：经指定连接器发一条消息。网关受理但拒绝时错误在
// SubmitResult.Error 里，HTTP 层错误才走 error 返回。
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	var out SubmitResult
	if err := c.do(ctx, http.MethodPost, "/api/send", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if !c.Configured() {
		return fmt.Errorf("gateway not configured")
	}
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("gateway %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("gateway %s %s: read body: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(raw))
		if len(msg) > 256 {
			msg = msg[:256]
		}
		return fmt.Errorf("gateway %s %s: http %d: %s", method, path, resp.StatusCode, msg)
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("gateway %s %s: decode: %w", method, path, err)
		}
	}
	return nil
}
