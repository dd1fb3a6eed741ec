// Package stakingsvc talks to the external staking service pools delegate their stake to.
package stakingsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ssgreg/repeat"

	"github.com/TxnLab/lsd/internal/lib/httputil"
	"github.com/TxnLab/lsd/internal/lib/lsd"
	"github.com/TxnLab/lsd/internal/lib/misc"
)

const defaultTimeout = 30 * time.Second

// Client implements lsd.StakingService over the service's JSON HTTP API.
type Client struct {
	logger  *slog.Logger
	cfg     ServiceConfig
	baseURL *url.URL
	http    *http.Client
}

var _ lsd.StakingService = (*Client)(nil)

func NewClient(logger *slog.Logger, cfg ServiceConfig) (*Client, error) {
	serverAddr, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse url:%v, error:%w", cfg.URL, err)
	}
	if serverAddr.Scheme == "tcp" {
		serverAddr.Scheme = "http"
	}
	if serverAddr.Scheme != "http" && serverAddr.Scheme != "https" {
		return nil, fmt.Errorf("unsupported staking service url:%s", cfg.URL)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxTries == 0 {
		cfg.MaxTries = 5
	}
	misc.Infof(logger, "using staking service at:%s", serverAddr.String())

	// allow multiple parallel connections to the same host with reuse
	customTransport := http.DefaultTransport.(*http.Transport).Clone()
	customTransport.MaxIdleConns = 100
	customTransport.MaxConnsPerHost = 100
	customTransport.MaxIdleConnsPerHost = 100

	return &Client{
		logger:  logger,
		cfg:     cfg,
		baseURL: serverAddr,
		http:    &http.Client{Transport: customTransport, Timeout: cfg.Timeout},
	}, nil
}

func (c *Client) ID() string {
	return c.cfg.ID()
}

// GetPool is the only call retried: it has no side effects.
func (c *Client) GetPool(ctx context.Context, pool string) (*lsd.StakingPoolInfo, error) {
	var info lsd.StakingPoolInfo
	err := repeat.Repeat(
		repeat.Fn(func() error {
			err := c.do(ctx, http.MethodGet, poolPath(pool), nil, &info)
			if err != nil && isTemporary(err) {
				return repeat.HintTemporary(err)
			}
			return err
		}),
		repeat.StopOnSuccess(),
		repeat.LimitMaxTries(c.cfg.MaxTries),
		repeat.FnOnError(func(err error) error {
			misc.Infof(c.logger, "retrying fetch of staking pool %s, error:%v", pool, err)
			return err
		}),
		repeat.WithDelay(
			repeat.SetContext(ctx),
			repeat.SetContextHintStop(),
			(&repeat.FullJitterBackoffBuilder{
				BaseDelay: 100 * time.Millisecond,
				MaxDelay:  2 * time.Second,
			}).Set(),
		),
	)
	if err != nil {
		return nil, err
	}
	return &info, nil
}

type amountRequest struct {
	Amount uint64 `json:"amount"`
}

type withdrawRequest struct {
	ID string `json:"id"`
}

type claimRequest struct {
	Compound bool `json:"compound"`
}

type amountResponse struct {
	Amount uint64 `json:"amount"`
}

func (c *Client) Stake(ctx context.Context, ref lsd.StakeAccountRef, amount uint64) (*lsd.StakeAccount, error) {
	var acct lsd.StakeAccount
	if err := c.do(ctx, http.MethodPost, stakerPath(ref, "stake"), amountRequest{Amount: amount}, &acct); err != nil {
		return nil, err
	}
	return &acct, nil
}

func (c *Client) Unstake(ctx context.Context, ref lsd.StakeAccountRef, amount uint64) (*lsd.UnstakeRequest, error) {
	var req lsd.UnstakeRequest
	if err := c.do(ctx, http.MethodPost, stakerPath(ref, "unstake"), amountRequest{Amount: amount}, &req); err != nil {
		return nil, err
	}
	if req.ID == "" {
		return nil, fmt.Errorf("staking service returned unstake request without an id")
	}
	return &req, nil
}

func (c *Client) Withdraw(ctx context.Context, ref lsd.StakeAccountRef, requestID string) (uint64, error) {
	var resp amountResponse
	if err := c.do(ctx, http.MethodPost, stakerPath(ref, "withdraw"), withdrawRequest{ID: requestID}, &resp); err != nil {
		return 0, err
	}
	return resp.Amount, nil
}

func (c *Client) Claim(ctx context.Context, ref lsd.StakeAccountRef, compound bool) (*lsd.StakeAccount, error) {
	var acct lsd.StakeAccount
	if err := c.do(ctx, http.MethodPost, stakerPath(ref, "claim"), claimRequest{Compound: compound}, &acct); err != nil {
		return nil, err
	}
	return &acct, nil
}

func poolPath(pool string) string {
	return "/pools/" + url.PathEscape(pool)
}

func stakerPath(ref lsd.StakeAccountRef, action string) string {
	return poolPath(ref.Pool) + "/stakers/" + ref.Staker.String() + "/" + action
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	for key, value := range c.cfg.Headers {
		req.Header.Set(key, value)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		statusErr := &StatusError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		var errResp httputil.ErrorResponse
		if json.Unmarshal(raw, &errResp) == nil && errResp.Error != "" {
			statusErr.Code = errResp.Code
			statusErr.Message = errResp.Error
		}
		return statusErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response of %s %s: %w", method, path, err)
	}
	return nil
}
