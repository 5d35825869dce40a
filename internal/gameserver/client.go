// Package gameserver talks to the match setup API that provisions Assault
// matches on the community game servers, and queries servers directly over
// UDP.
package gameserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/jensholdgaard/assault-pugbot/internal/clock"
	"github.com/jensholdgaard/assault-pugbot/internal/config"
)

var (
	ErrUnavailable     = errors.New("cannot contact the game server API")
	ErrInvalidResponse = errors.New("invalid response from the game server API")
	ErrNotCompleted    = errors.New("game server request did not complete")
)

// Client calls the match setup API. Check, Status and List share a request
// floor. Status and List answer from the last response inside it; Check
// waits it out.
type Client struct {
	url    string
	token  string
	http   *http.Client
	clock  clock.Clock
	logger *slog.Logger
	tracer trace.Tracer

	mu       sync.Mutex
	floor    *rate.Limiter
	checks   map[string]*Info
	lastList []Info
}

// NewClient returns a Client for the API described by cfg.
func NewClient(cfg config.GameServerConfig, clk clock.Clock, logger *slog.Logger, tp trace.TracerProvider) *Client {
	return &Client{
		url:   cfg.URL,
		token: cfg.Token,
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport, otelhttp.WithTracerProvider(tp)),
			Timeout:   cfg.RequestTimeout,
		},
		clock:  clk,
		logger: logger,
		tracer: tp.Tracer("github.com/jensholdgaard/assault-pugbot/internal/gameserver"),
		floor:  rate.NewLimiter(rate.Every(cfg.StatusFloor), 1),
		checks: make(map[string]*Info),
	}
}

// post sends one API request and decodes the JSON response into out.
func (c *Client) post(ctx context.Context, mode string, body, out any) error {
	ctx, span := c.tracer.Start(ctx, "Client.post", trace.WithAttributes(attribute.String("mode", mode)))
	defer span.End()

	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding %s request: %w", mode, err)
		}
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, payload)
	if err != nil {
		return fmt.Errorf("building %s request: %w", mode, err)
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	req.Header.Set("Accept", "*/*")
	req.Header.Set("PugAuth", c.token)
	req.Header.Set("Mode", mode)

	// Every request counts towards the status floor.
	c.floor.AllowN(c.clock.Now(), 1)

	resp, err := c.http.Do(req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		c.logger.WarnContext(ctx, "game server API request failed", slog.String("mode", mode), slog.Any("error", err))
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		span.SetStatus(codes.Error, resp.Status)
		return fmt.Errorf("%w: %s returned %s", ErrUnavailable, mode, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		span.SetStatus(codes.Error, err.Error())
		c.logger.ErrorContext(ctx, "invalid JSON from game server API",
			slog.String("mode", mode),
			slog.Int("status", resp.StatusCode),
			slog.Any("error", err),
		)
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}

type serverRef struct {
	Server string `json:"server"`
}

// awaitFloor blocks until the request floor admits another request.
func (c *Client) awaitFloor() {
	now := c.clock.Now()
	if d := c.floor.ReserveN(now, 1).DelayFrom(now); d > 0 {
		c.clock.Sleep(d)
	}
}

// Check fetches the current status of server ref, waiting for the request
// floor first.
func (c *Client) Check(ctx context.Context, ref string) (*Info, error) {
	c.awaitFloor()
	return c.check(ctx, ref)
}

func (c *Client) check(ctx context.Context, ref string) (*Info, error) {
	var info Info
	if err := c.post(ctx, ModeCheck, serverRef{Server: ref}, &info); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.checks[ref] = &info
	c.mu.Unlock()
	return &info, nil
}

// Status is Check behind the request floor. Inside the floor it returns
// the last known status of ref, if any.
func (c *Client) Status(ctx context.Context, ref string) (*Info, error) {
	c.mu.Lock()
	cached := c.checks[ref]
	c.mu.Unlock()

	if cached != nil && !c.floor.AllowN(c.clock.Now(), 1) {
		return cached, nil
	}
	info, err := c.check(ctx, ref)
	if err != nil && cached != nil {
		return cached, err
	}
	return info, err
}

// List fetches every server known to the API, behind the request floor.
func (c *Client) List(ctx context.Context) ([]Info, error) {
	c.mu.Lock()
	cached := c.lastList
	c.mu.Unlock()

	if cached != nil && !c.floor.AllowN(c.clock.Now(), 1) {
		return cached, nil
	}
	var list []Info
	if err := c.post(ctx, ModeList, nil, &list); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.lastList = list
	c.mu.Unlock()
	return list, nil
}

// Setup provisions a match. It fails with ErrNotCompleted, alongside the
// response, when the API does not report the setup as completed.
func (c *Client) Setup(ctx context.Context, req SetupRequest) (*Info, error) {
	ctx, span := c.tracer.Start(ctx, "Client.Setup",
		trace.WithAttributes(
			attribute.String("server", req.Server),
			attribute.Int("players", req.MaxPlayers),
			attribute.Int("maps", req.MatchLength),
		),
	)
	defer span.End()

	var info Info
	if err := c.post(ctx, ModeSetup, req, &info); err != nil {
		return nil, err
	}
	if info.SetupResult != ResultCompleted {
		return &info, fmt.Errorf("%w: setup result %q", ErrNotCompleted, info.SetupResult)
	}
	if info.SetupConfig == nil {
		return &info, fmt.Errorf("%w: setup response without setupConfig", ErrInvalidResponse)
	}
	return &info, nil
}

// EndGame returns server ref to public play.
func (c *Client) EndGame(ctx context.Context, ref string) (*Info, error) {
	var info Info
	if err := c.post(ctx, ModeEndGame, serverRef{Server: ref}, &info); err != nil {
		return nil, err
	}
	if info.SetupResult != ResultCompleted {
		return &info, fmt.Errorf("%w: endgame result %q", ErrNotCompleted, info.SetupResult)
	}
	return &info, nil
}

// Control starts or stops an on-demand server.
func (c *Client) Control(ctx context.Context, ref string, start bool) (*Info, error) {
	mode := ModeRemoteStop
	if start {
		mode = ModeRemoteStart
	}
	var info Info
	if err := c.post(ctx, mode, serverRef{Server: ref}, &info); err != nil {
		return nil, err
	}
	c.logger.InfoContext(ctx, "on-demand server control sent", slog.String("server", ref), slog.String("mode", mode))
	return &info, nil
}
