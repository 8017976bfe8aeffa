package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	"github.com/osiastedian/syshub/libs/challenge"
	"github.com/osiastedian/syshub/libs/kafka"
	"github.com/osiastedian/syshub/libs/logging"
	"github.com/osiastedian/syshub/libs/password"
	"github.com/osiastedian/syshub/libs/portal"
	"github.com/osiastedian/syshub/libs/rate"
	"github.com/osiastedian/syshub/libs/totp"
	"github.com/osiastedian/syshub/services/testutil"
	"github.com/osiastedian/syshub/services/user/internal/storage"
)

const (
	testSecret    = "test-secret"
	testPassword  = "Sentry-Node-1"
	votingAddress = "sys1qxy2kgdygjrsqtzq2n0yrf2493p83kkfjhx0wlh"
	smsCode       = "246810"
	codeChecks    = 5
)

type fixedCode string

func (f fixedCode) Code() (string, error) { return string(f), nil }

type fakeStore struct {
	mu      sync.Mutex
	users   map[uuid.UUID]*storage.User
	audits  []string
	deleted []uuid.UUID
}

func (f *fakeStore) GetUserByID(_ context.Context, id uuid.UUID) (*storage.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) UpdateUser(_ context.Context, id uuid.UUID, update storage.UserUpdate) (*storage.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	set := func(dst **string, v *string) {
		if v == nil {
			return
		}
		if *v == "" {
			*dst = nil
			return
		}
		s := *v
		*dst = &s
	}
	set(&u.Phone, update.Phone)
	set(&u.VotingAddress, update.VotingAddress)
	set(&u.TOTPSecret, update.TOTPSecret)
	if update.SMSEnabled != nil {
		u.SMSEnabled = *update.SMSEnabled
	}
	if update.GAuthEnabled != nil {
		u.GAuthEnabled = *update.GAuthEnabled
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) DeleteUser(_ context.Context, id uuid.UUID, audit storage.AuditLog) (storage.Deletion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[id]; !ok {
		return storage.Deletion{}, pgx.ErrNoRows
	}
	delete(f.users, id)
	f.deleted = append(f.deleted, id)
	f.audits = append(f.audits, audit.Action)
	return storage.Deletion{MasternodesReleased: 2}, nil
}

func (f *fakeStore) InsertAudit(_ context.Context, log storage.AuditLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audits = append(f.audits, log.Action)
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	topics []string
	values []any
}

func (p *fakePublisher) PublishJSON(_ context.Context, topic, _ string, value any) (int32, int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.values = append(p.values, value)
	return 0, 0, nil
}

func (p *fakePublisher) Close() error { return nil }

type recordingSender struct {
	phone string
	code  string
}

func (r *recordingSender) Send(_ context.Context, phone, code string) error {
	r.phone, r.code = phone, code
	return nil
}

type env struct {
	router    *gin.Engine
	handler   *Handler
	store     *fakeStore
	publisher *fakePublisher
	sender    *recordingSender
	user      *storage.User
	sessionID string
	token     string
	now       time.Time
}

func setup(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	codes := challenge.NewRedisStore(client, "test:sms:", 5*time.Minute, 5).WithCodes(fixedCode(smsCode))
	attempts := rate.NewRedisLimiter(client, codeChecks, rate.DefaultCodeWindow, "test:rl:")

	hash, err := password.Hash(testPassword, password.Params{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	user := &storage.User{
		ID:           uuid.New(),
		Email:        "user@example.com",
		PasswordHash: hash,
		Status:       "active",
		CreatedAt:    time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC),
	}
	store := &fakeStore{users: map[uuid.UUID]*storage.User{user.ID: user}}
	publisher := &fakePublisher{}
	sender := &recordingSender{}

	now := time.Now()
	h := New(store, logging.Discard(), []byte(testSecret), codes, attempts, publisher)
	h.Sender = sender
	h.Now = func() time.Time { return now }

	router := gin.New()
	h.Register(router)

	sessionID := uuid.NewString()
	token, err := testutil.GenerateJWT(user.ID, sessionID, []byte(testSecret), 15*time.Minute, now)
	if err != nil {
		t.Fatalf("token: %v", err)
	}

	return &env{
		router:    router,
		handler:   h,
		store:     store,
		publisher: publisher,
		sender:    sender,
		user:      user,
		sessionID: sessionID,
		token:     token,
		now:       now,
	}
}

func (e *env) path(suffix string) string {
	return "/user/" + e.user.ID.String() + suffix
}

func (e *env) do(method, suffix string, body any) *httptest.ResponseRecorder {
	return testutil.MakeAuthRequest(e.router, method, e.path(suffix), body, e.token)
}

func decodeUser(t *testing.T, resp *httptest.ResponseRecorder) portal.User {
	t.Helper()
	var out portal.User
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode user: %v", err)
	}
	return out
}

func boolPtr(v bool) *bool { return &v }

func strPtr(v string) *string { return &v }

func TestGetUser(t *testing.T) {
	e := setup(t)

	resp := e.do(http.MethodGet, "", nil)
	testutil.AssertHTTPStatus(t, resp, http.StatusOK)
	out := decodeUser(t, resp)
	if out.ID != e.user.ID || out.Email != e.user.Email || out.TwoFA.Enabled() {
		t.Fatalf("unexpected user: %+v", out)
	}

	resp = testutil.MakeAuthRequest(e.router, http.MethodGet, "/user/"+uuid.NewString(), nil, e.token)
	testutil.AssertErrorCode(t, resp, testutil.ErrorCodeForbidden)

	resp = testutil.MakeAPIRequest(e.router, http.MethodGet, e.path(""), nil)
	testutil.AssertErrorCode(t, resp, testutil.ErrorCodeUnauthorized)
}

func TestUpdateProfileFields(t *testing.T) {
	e := setup(t)

	resp := e.do(http.MethodPut, "", portal.UpdateUserRequest{VotingAddress: strPtr("sys1-not-an-address")})
	testutil.AssertErrorCode(t, resp, testutil.ErrorCodeValidation)
	if testutil.DecodeError(t, resp).Fields["voting_address"] == "" {
		t.Fatalf("expected voting_address field error")
	}

	resp = e.do(http.MethodPut, "", portal.UpdateUserRequest{
		VotingAddress: strPtr(votingAddress),
		Phone:         strPtr("+1 (555) 123-4567"),
	})
	testutil.AssertHTTPStatus(t, resp, http.StatusOK)
	out := decodeUser(t, resp)
	if out.VotingAddress != votingAddress || out.Phone != "+15551234567" {
		t.Fatalf("unexpected user: %+v", out)
	}

	resp = e.do(http.MethodPut, "", portal.UpdateUserRequest{VotingAddress: strPtr("")})
	testutil.AssertHTTPStatus(t, resp, http.StatusOK)
	if decodeUser(t, resp).VotingAddress != "" {
		t.Fatalf("expected voting address cleared")
	}
}

func TestEnableAuthenticator(t *testing.T) {
	e := setup(t)
	setupData, err := totp.Generate("SysHub", e.user.Email)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	code, _ := totp.CodeAt(setupData.Secret, e.now)
	enable := func(pw, c string) portal.UpdateUserRequest {
		return portal.UpdateUserRequest{
			Password: pw,
			TwoFA:    &portal.TwoFactorUpdate{GAuth: boolPtr(true), Secret: setupData.Secret},
			Code:     c,
		}
	}

	resp := e.do(http.MethodPut, "", enable("wrong", code))
	testutil.AssertErrorCode(t, resp, testutil.ErrorCodeInvalidCredential)
	testutil.AssertErrorMessage(t, resp, "wrong password")

	wrong := "000000"
	if wrong == code {
		wrong = "111111"
	}
	resp = e.do(http.MethodPut, "", enable(testPassword, wrong))
	testutil.AssertErrorCode(t, resp, testutil.ErrorCodeInvalidCode)

	resp = e.do(http.MethodPut, "", enable(testPassword, "12ab"))
	testutil.AssertErrorCode(t, resp, testutil.ErrorCodeValidation)

	resp = e.do(http.MethodPut, "", enable(testPassword, code))
	testutil.AssertHTTPStatus(t, resp, http.StatusOK)
	if out := decodeUser(t, resp); !out.TwoFA.GAuth || out.TwoFA.SMS {
		t.Fatalf("expected authenticator enabled, got %+v", out.TwoFA)
	}

	stored := e.store.users[e.user.ID]
	if stored.TOTPSecret == nil || *stored.TOTPSecret != setupData.Secret {
		t.Fatalf("expected secret stored")
	}
	if len(e.publisher.topics) != 1 || e.publisher.topics[0] != kafka.TopicTwoFactorChanged {
		t.Fatalf("expected twofactor event, got %v", e.publisher.topics)
	}

	resp = e.do(http.MethodPut, "", portal.UpdateUserRequest{
		Password: testPassword,
		TwoFA:    &portal.TwoFactorUpdate{SMS: boolPtr(true)},
		Code:     code,
	})
	testutil.AssertErrorCode(t, resp, testutil.ErrorCodeValidation)
	if testutil.DecodeError(t, resp).Fields["two_fa"] == "" {
		t.Fatalf("expected two_fa field error when switching methods")
	}
}

func TestEnableRejectsBothMethods(t *testing.T) {
	e := setup(t)
	resp := e.do(http.MethodPut, "", portal.UpdateUserRequest{
		Password: testPassword,
		TwoFA:    &portal.TwoFactorUpdate{SMS: boolPtr(true), GAuth: boolPtr(true), Secret: "JBSWY3DPEHPK3PXP"},
		Code:     "123456",
	})
	testutil.AssertErrorCode(t, resp, testutil.ErrorCodeValidation)
}

func TestDisableAuthenticator(t *testing.T) {
	e := setup(t)
	secret := testutil.SecureTOTPSecret
	e.user.GAuthEnabled = true
	e.user.TOTPSecret = &secret
	code, _ := totp.CodeAt(secret, e.now)

	disable := portal.UpdateUserRequest{
		Password: testPassword,
		TwoFA:    &portal.TwoFactorUpdate{SMS: boolPtr(false), GAuth: boolPtr(false)},
		Code:     code,
	}

	resp := e.do(http.MethodPut, "", disable)
	testutil.AssertHTTPStatus(t, resp, http.StatusOK)
	if decodeUser(t, resp).TwoFA.Enabled() {
		t.Fatalf("expected 2fa disabled")
	}
	if e.store.users[e.user.ID].TOTPSecret != nil {
		t.Fatalf("expected secret cleared")
	}

	resp = e.do(http.MethodGet, "/2fa", nil)
	var status portal.TwoFactorStatus
	if err := json.Unmarshal(resp.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.Enabled {
		t.Fatalf("expected status disabled")
	}
}

func TestSMSEnableAndVerify(t *testing.T) {
	e := setup(t)

	resp := e.do(http.MethodPost, "/2fa/sms", nil)
	testutil.AssertErrorCode(t, resp, testutil.ErrorCodeValidation)

	phone := "+15551234567"
	e.user.Phone = &phone

	resp = e.do(http.MethodPost, "/2fa/sms", nil)
	testutil.AssertHTTPStatus(t, resp, http.StatusAccepted)
	if e.sender.phone != phone || e.sender.code != smsCode {
		t.Fatalf("unexpected send: %+v", e.sender)
	}

	resp = e.do(http.MethodPut, "", portal.UpdateUserRequest{
		Password: testPassword,
		TwoFA:    &portal.TwoFactorUpdate{SMS: boolPtr(true)},
		Code:     smsCode,
	})
	testutil.AssertHTTPStatus(t, resp, http.StatusOK)
	if out := decodeUser(t, resp); !out.TwoFA.SMS || out.TwoFA.GAuth {
		t.Fatalf("expected sms enabled, got %+v", out.TwoFA)
	}

	for i := 0; i < 2; i++ {
		resp = e.do(http.MethodPost, "/2fa/verify", codeRequest{Code: smsCode})
		testutil.AssertHTTPStatus(t, resp, http.StatusOK)
	}

	resp = e.do(http.MethodPost, "/2fa/verify", codeRequest{Code: "999999"})
	testutil.AssertErrorCode(t, resp, testutil.ErrorCodeInvalidCode)

	resp = e.do(http.MethodPut, "", portal.UpdateUserRequest{Phone: strPtr("")})
	testutil.AssertErrorCode(t, resp, testutil.ErrorCodeValidation)
}

func TestVerifyWithoutTwoFactor(t *testing.T) {
	e := setup(t)
	resp := e.do(http.MethodPost, "/2fa/verify", codeRequest{Code: "123456"})
	testutil.AssertErrorCode(t, resp, testutil.ErrorCodeInvalidCode)
}

func (e *env) deleteRequest(reauth string, body any) *httptest.ResponseRecorder {
	return testutil.MakeRequest(e.router, http.MethodDelete, e.path(""), body, map[string]string{
		"Authorization":     "Bearer " + e.token,
		portal.ReauthHeader: reauth,
	})
}

func TestDeleteUserRequiresReauth(t *testing.T) {
	e := setup(t)

	resp := e.deleteRequest("", nil)
	testutil.AssertErrorCode(t, resp, testutil.ErrorCodeUnauthorized)

	otherSession, _ := testutil.GenerateReauthJWT(e.user.ID, uuid.NewString(), []byte(testSecret), e.now)
	resp = e.deleteRequest(otherSession, nil)
	testutil.AssertErrorCode(t, resp, testutil.ErrorCodeUnauthorized)

	stale, _ := testutil.GenerateReauthJWT(e.user.ID, e.sessionID, []byte(testSecret), e.now.Add(-6*time.Minute))
	resp = e.deleteRequest(stale, nil)
	testutil.AssertErrorCode(t, resp, testutil.ErrorCodeUnauthorized)

	resp = e.deleteRequest(e.token, nil)
	testutil.AssertErrorCode(t, resp, testutil.ErrorCodeUnauthorized)

	if len(e.store.deleted) != 0 {
		t.Fatalf("expected nothing deleted")
	}
}

func TestDeleteUser(t *testing.T) {
	e := setup(t)
	reauth, _ := testutil.GenerateReauthJWT(e.user.ID, e.sessionID, []byte(testSecret), e.now.Add(-time.Minute))

	resp := e.deleteRequest(reauth, nil)
	testutil.AssertHTTPStatus(t, resp, http.StatusNoContent)
	if len(e.store.deleted) != 1 || e.store.deleted[0] != e.user.ID {
		t.Fatalf("expected user deleted")
	}
	if len(e.publisher.topics) != 1 || e.publisher.topics[0] != kafka.TopicUserDeleted {
		t.Fatalf("expected user.deleted event, got %v", e.publisher.topics)
	}
	ev, ok := e.publisher.values[0].(kafka.UserDeletedEvent)
	if !ok || ev.UserID != e.user.ID.String() {
		t.Fatalf("unexpected event: %+v", e.publisher.values[0])
	}
}

func TestDeleteUserWithTwoFactor(t *testing.T) {
	e := setup(t)
	secret := testutil.SecureTOTPSecret
	e.user.GAuthEnabled = true
	e.user.TOTPSecret = &secret
	reauth, _ := testutil.GenerateReauthJWT(e.user.ID, e.sessionID, []byte(testSecret), e.now)

	code, _ := totp.CodeAt(secret, e.now)
	wrong := "000000"
	if wrong == code {
		wrong = "111111"
	}

	resp := e.deleteRequest(reauth, codeRequest{Code: wrong})
	testutil.AssertErrorCode(t, resp, testutil.ErrorCodeInvalidCode)

	resp = e.deleteRequest(reauth, nil)
	testutil.AssertErrorCode(t, resp, testutil.ErrorCodeInvalidCode)

	resp = e.deleteRequest(reauth, codeRequest{Code: code})
	testutil.AssertHTTPStatus(t, resp, http.StatusNoContent)
}

func TestTwoFactorUpdateThatChangesNothingIsRejected(t *testing.T) {
	e := setup(t)
	current := testutil.SecureTOTPSecret
	e.user.GAuthEnabled = true
	e.user.TOTPSecret = &current

	replacement, err := totp.Generate("SysHub", e.user.Email)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	code, _ := totp.CodeAt(replacement.Secret, e.now)

	for _, pw := range []string{"definitely-wrong", testPassword} {
		resp := e.do(http.MethodPut, "", portal.UpdateUserRequest{
			Password: pw,
			TwoFA:    &portal.TwoFactorUpdate{GAuth: boolPtr(true), Secret: replacement.Secret},
			Code:     code,
		})
		testutil.AssertErrorCode(t, resp, testutil.ErrorCodeValidation)
		if got := testutil.DecodeError(t, resp).Fields["two_fa"]; got != "already enabled" {
			t.Fatalf("expected already enabled, got %q", got)
		}
	}
	if stored := e.store.users[e.user.ID].TOTPSecret; stored == nil || *stored != current {
		t.Fatalf("expected original secret kept")
	}
	if len(e.publisher.topics) != 0 {
		t.Fatalf("expected no events, got %v", e.publisher.topics)
	}
}

func TestDisableWithoutTwoFactorIsRejected(t *testing.T) {
	e := setup(t)

	resp := e.do(http.MethodPut, "", portal.UpdateUserRequest{
		Password: "definitely-wrong",
		TwoFA:    &portal.TwoFactorUpdate{SMS: boolPtr(false), GAuth: boolPtr(false)},
		Code:     "123456",
	})
	testutil.AssertErrorCode(t, resp, testutil.ErrorCodeValidation)
	if got := testutil.DecodeError(t, resp).Fields["two_fa"]; got != "not enabled" {
		t.Fatalf("expected not enabled, got %q", got)
	}

	resp = e.do(http.MethodPut, "", portal.UpdateUserRequest{
		TwoFA: &portal.TwoFactorUpdate{},
		Code:  "123456",
	})
	testutil.AssertErrorCode(t, resp, testutil.ErrorCodeValidation)
	fields := testutil.DecodeError(t, resp).Fields
	if fields["two_fa"] == "" || fields["password"] != "required" {
		t.Fatalf("unexpected fields: %v", fields)
	}
}

func TestCodeChecksAreRateLimitedPerUser(t *testing.T) {
	e := setup(t)
	secret := testutil.SecureTOTPSecret
	e.user.GAuthEnabled = true
	e.user.TOTPSecret = &secret
	code, _ := totp.CodeAt(secret, e.now)
	wrong := "000000"
	if wrong == code {
		wrong = "111111"
	}

	for i := 0; i < codeChecks; i++ {
		resp := e.do(http.MethodPost, "/2fa/verify", codeRequest{Code: wrong})
		testutil.AssertErrorCode(t, resp, testutil.ErrorCodeInvalidCode)
	}

	resp := e.do(http.MethodPost, "/2fa/verify", codeRequest{Code: code})
	testutil.AssertErrorCode(t, resp, testutil.ErrorCodeRateLimited)
	if resp.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}

	reauth, _ := testutil.GenerateReauthJWT(e.user.ID, e.sessionID, []byte(testSecret), e.now)
	resp = e.deleteRequest(reauth, codeRequest{Code: code})
	testutil.AssertErrorCode(t, resp, testutil.ErrorCodeRateLimited)
	if len(e.store.deleted) != 0 {
		t.Fatalf("expected nothing deleted while limited")
	}

	resp = e.do(http.MethodPut, "", portal.UpdateUserRequest{
		Password: testPassword,
		TwoFA:    &portal.TwoFactorUpdate{GAuth: boolPtr(false)},
		Code:     code,
	})
	testutil.AssertErrorCode(t, resp, testutil.ErrorCodeRateLimited)
	if !e.store.users[e.user.ID].GAuthEnabled {
		t.Fatalf("expected authenticator still enabled")
	}
}
