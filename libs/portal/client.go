package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const ReauthHeader = "X-Reauth-Token"

// Endpoints are the base URLs of the identity provider and the backend
// services. Empty service URLs fall back to API.
type Endpoints struct {
	Auth       string
	API        string
	User       string
	Masternode string
	Governance string
}

func (e Endpoints) base(service string) string {
	switch service {
	case "auth":
		return e.Auth
	case "user":
		if e.User != "" {
			return e.User
		}
	case "masternode":
		if e.Masternode != "" {
			return e.Masternode
		}
	case "governance":
		if e.Governance != "" {
			return e.Governance
		}
	}
	return e.API
}

type Client struct {
	endpoints Endpoints
	http      *http.Client
	token     string
}

func NewClient(endpoints Endpoints, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{endpoints: endpoints, http: httpClient}
}

// WithToken returns a copy of the client that sends the given bearer token.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

func (c *Client) SignUp(ctx context.Context, email, password string) (uuid.UUID, error) {
	var out struct {
		UserID uuid.UUID `json:"user_id"`
	}
	err := c.do(ctx, http.MethodPost, "auth", "/auth/signup", map[string]string{"email": email, "password": password}, &out, nil)
	return out.UserID, err
}

func (c *Client) SignIn(ctx context.Context, email, password, code string) (*Tokens, error) {
	body := map[string]string{"email": email, "password": password}
	if code != "" {
		body["mfa_code"] = code
	}
	return c.tokens(ctx, "/auth/login", body)
}

// RequestLoginCode asks the auth service to text a login code to an account
// that verifies by SMS.
func (c *Client) RequestLoginCode(ctx context.Context, email, password string) error {
	body := map[string]string{"email": email, "password": password}
	return c.do(ctx, http.MethodPost, "auth", "/auth/login/sms", body, nil, nil)
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	return c.tokens(ctx, "/auth/refresh", map[string]string{"refresh_token": refreshToken})
}

func (c *Client) tokens(ctx context.Context, path string, body any) (*Tokens, error) {
	var out Tokens
	if err := c.do(ctx, http.MethodPost, "auth", path, body, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SignOut(ctx context.Context, refreshToken string) error {
	return c.do(ctx, http.MethodPost, "auth", "/auth/logout", map[string]string{"refresh_token": refreshToken}, nil, nil)
}

func (c *Client) Reauthenticate(ctx context.Context, email, password string) (*ReauthToken, error) {
	var out ReauthToken
	if err := c.do(ctx, http.MethodPost, "auth", "/auth/reauthenticate", map[string]string{"email": email, "password": password}, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	body := map[string]string{"old_password": oldPassword, "new_password": newPassword}
	return c.do(ctx, http.MethodPost, "auth", "/auth/password", body, nil, nil)
}

func (c *Client) SendPasswordReset(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "auth", "/auth/password/reset", map[string]string{"email": email}, nil, nil)
}

func (c *Client) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	body := map[string]string{"token": token, "new_password": newPassword}
	return c.do(ctx, http.MethodPost, "auth", "/auth/password/reset/confirm", body, nil, nil)
}

func (c *Client) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	var out User
	if err := c.do(ctx, http.MethodGet, "user", "/user/"+id.String(), nil, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateUser(ctx context.Context, id uuid.UUID, req UpdateUserRequest) (*User, error) {
	var out User
	if err := c.do(ctx, http.MethodPut, "user", "/user/"+id.String(), req, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) TwoFactorStatus(ctx context.Context, id uuid.UUID) (*TwoFactorStatus, error) {
	var out TwoFactorStatus
	if err := c.do(ctx, http.MethodGet, "user", "/user/"+id.String()+"/2fa", nil, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyCode returns nil only when the backend accepted the code.
func (c *Client) VerifyCode(ctx context.Context, id uuid.UUID, code string) error {
	var out struct {
		Valid bool `json:"valid"`
	}
	if err := c.do(ctx, http.MethodPost, "user", "/user/"+id.String()+"/2fa/verify", map[string]string{"code": code}, &out, nil); err != nil {
		return err
	}
	if !out.Valid {
		return &APIError{Status: http.StatusNotAcceptable, Code: "INVALID_CODE", Message: "invalid verification code"}
	}
	return nil
}

func (c *Client) RequestSMSCode(ctx context.Context, id uuid.UUID) error {
	return c.do(ctx, http.MethodPost, "user", "/user/"+id.String()+"/2fa/sms", nil, nil, nil)
}

func (c *Client) DeleteUser(ctx context.Context, id uuid.UUID, reauthToken, code string) error {
	header := http.Header{}
	header.Set(ReauthHeader, reauthToken)
	var body any
	if code != "" {
		body = map[string]string{"code": code}
	}
	return c.do(ctx, http.MethodDelete, "user", "/user/"+id.String(), body, nil, header)
}

func (c *Client) SearchMasternodes(ctx context.Context, q MasternodeQuery) (*MasternodePage, error) {
	var out MasternodePage
	if err := c.do(ctx, http.MethodPost, "masternode", "/masternodes/search", q, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RegisterMasternode(ctx context.Context, req RegisterMasternodeRequest) (*Masternode, error) {
	var out Masternode
	if err := c.do(ctx, http.MethodPost, "masternode", "/masternodes", req, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UserMasternodes(ctx context.Context, id uuid.UUID) ([]Masternode, error) {
	var out struct {
		Items []Masternode `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "masternode", "/user/"+id.String()+"/masternodes", nil, &out, nil); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (c *Client) ListProposals(ctx context.Context, f ProposalFilter) (*ProposalPage, error) {
	q := url.Values{}
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	if f.Cursor != "" {
		q.Set("cursor", f.Cursor)
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	path := "/proposals"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out ProposalPage
	if err := c.do(ctx, http.MethodGet, "governance", path, nil, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetProposal(ctx context.Context, id uuid.UUID) (*Proposal, error) {
	var out Proposal
	if err := c.do(ctx, http.MethodGet, "governance", "/proposals/"+id.String(), nil, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateProposal(ctx context.Context, req CreateProposalRequest) (*Proposal, error) {
	var out Proposal
	if err := c.do(ctx, http.MethodPost, "governance", "/proposals", req, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitProposal attaches the collateral transaction of a draft.
func (c *Client) SubmitProposal(ctx context.Context, id uuid.UUID, collateralTxID string) (*Proposal, error) {
	var out Proposal
	req := SubmitProposalRequest{CollateralTxID: collateralTxID}
	if err := c.do(ctx, http.MethodPost, "governance", "/proposals/"+id.String()+"/submit", req, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) VoteProposal(ctx context.Context, id uuid.UUID, req VoteRequest) (*VoteResult, error) {
	var out VoteResult
	if err := c.do(ctx, http.MethodPost, "governance", "/proposals/"+id.String()+"/vote", req, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, service, path string, body any, out any, header http.Header) error {
	base := strings.TrimRight(c.endpoints.base(service), "/")
	if base == "" {
		return fmt.Errorf("no endpoint configured for %s", service)
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, base+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return decodeError(resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(status int, data []byte) error {
	apiErr := &APIError{Status: status}
	if err := json.Unmarshal(data, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(data))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(status)
		}
	}
	if status >= http.StatusInternalServerError {
		return fmt.Errorf("%w: %w", ErrUnexpected, apiErr)
	}
	return apiErr
}
