package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/osiastedian/syshub/libs/logging"
	"github.com/osiastedian/syshub/libs/portal"
	"github.com/osiastedian/syshub/services/governance/internal/service"
	"github.com/osiastedian/syshub/services/governance/internal/storage"
	"github.com/osiastedian/syshub/services/testutil"
)

const testSecret = "test-secret"

type stubGovernance struct {
	filter  portal.ProposalFilter
	owner   uuid.UUID
	txid    string
	vote    portal.VoteRequest
	err     error
	page    portal.ProposalPage
	created portal.Proposal
}

func (s *stubGovernance) List(_ context.Context, f portal.ProposalFilter) (portal.ProposalPage, error) {
	s.filter = f
	return s.page, s.err
}

func (s *stubGovernance) Get(_ context.Context, id uuid.UUID) (portal.Proposal, error) {
	return portal.Proposal{ID: id, Name: "dev-fund"}, s.err
}

func (s *stubGovernance) Create(_ context.Context, owner uuid.UUID, req portal.CreateProposalRequest) (portal.Proposal, error) {
	s.owner = owner
	s.created = portal.Proposal{ID: uuid.New(), Name: req.Name, Status: storage.StatusDraft, PrepareCommand: "gobject_prepare 0 1 0 00"}
	return s.created, s.err
}

func (s *stubGovernance) Submit(_ context.Context, owner, id uuid.UUID, txid string) (portal.Proposal, error) {
	s.owner = owner
	s.txid = txid
	return portal.Proposal{ID: id, Status: storage.StatusSubmitted, CollateralTxID: txid}, s.err
}

func (s *stubGovernance) Vote(_ context.Context, voter, id uuid.UUID, req portal.VoteRequest) (portal.VoteResult, error) {
	s.owner = voter
	s.vote = req
	return portal.VoteResult{Recorded: len(req.Masternodes), Proposal: portal.Proposal{ID: id}}, s.err
}

func setup(t *testing.T) (*gin.Engine, *stubGovernance, uuid.UUID, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	gov := &stubGovernance{}
	router := gin.New()
	New(gov, logging.Discard()).Register(router, []byte(testSecret))

	userID := uuid.New()
	token, err := testutil.GenerateJWT(userID, uuid.NewString(), []byte(testSecret), 15*time.Minute, time.Now())
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	return router, gov, userID, token
}

func TestListProposals(t *testing.T) {
	router, gov, _, _ := setup(t)
	gov.page = portal.ProposalPage{Items: []portal.Proposal{{Name: "dev-fund", Passing: true}}, NextCursor: "next"}

	resp := testutil.MakeAPIRequest(router, http.MethodGet, "/proposals?status=submitted&cursor=abc&limit=5", nil)
	testutil.AssertHTTPStatus(t, resp, http.StatusOK)
	if gov.filter.Status != "submitted" || gov.filter.Cursor != "abc" || gov.filter.Limit != 5 {
		t.Fatalf("unexpected filter: %+v", gov.filter)
	}
	var page portal.ProposalPage
	if err := json.Unmarshal(resp.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(page.Items) != 1 || page.NextCursor != "next" || !page.Items[0].Passing {
		t.Fatalf("unexpected page: %+v", page)
	}

	resp = testutil.MakeAPIRequest(router, http.MethodGet, "/proposals?limit=abc", nil)
	testutil.AssertErrorCode(t, resp, testutil.ErrorCodeInvalidRequest)

	gov.err = storage.ErrInvalidCursor
	resp = testutil.MakeAPIRequest(router, http.MethodGet, "/proposals?cursor=bad", nil)
	testutil.AssertErrorCode(t, resp, testutil.ErrorCodeInvalidRequest)
}

func TestGetProposal(t *testing.T) {
	router, gov, _, _ := setup(t)

	resp := testutil.MakeAPIRequest(router, http.MethodGet, "/proposals/"+uuid.NewString(), nil)
	testutil.AssertHTTPStatus(t, resp, http.StatusOK)

	resp = testutil.MakeAPIRequest(router, http.MethodGet, "/proposals/not-a-uuid", nil)
	testutil.AssertErrorCode(t, resp, testutil.ErrorCodeInvalidRequest)

	gov.err = storage.ErrNotFound
	resp = testutil.MakeAPIRequest(router, http.MethodGet, "/proposals/"+uuid.NewString(), nil)
	testutil.AssertErrorCode(t, resp, testutil.ErrorCodeNotFound)
}

func TestCreateProposal(t *testing.T) {
	router, gov, userID, token := setup(t)
	req := portal.CreateProposalRequest{Name: "dev-fund", PaymentCount: 1}

	resp := testutil.MakeAPIRequest(router, http.MethodPost, "/proposals", req)
	testutil.AssertErrorCode(t, resp, testutil.ErrorCodeUnauthorized)

	resp = testutil.MakeAuthRequest(router, http.MethodPost, "/proposals", req, token)
	testutil.AssertHTTPStatus(t, resp, http.StatusCreated)
	if gov.owner != userID {
		t.Fatalf("expected owner %s, got %s", userID, gov.owner)
	}
	var p portal.Proposal
	if err := json.Unmarshal(resp.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.PrepareCommand == "" {
		t.Fatal("expected prepare command")
	}

	gov.err = &service.ValidationError{Fields: map[string]string{"name": "required"}}
	resp = testutil.MakeAuthRequest(router, http.MethodPost, "/proposals", req, token)
	testutil.AssertErrorCode(t, resp, testutil.ErrorCodeValidation)
	if testutil.DecodeError(t, resp).Fields["name"] != "required" {
		t.Fatalf("expected name field error: %s", resp.Body.String())
	}

	gov.err = storage.ErrDuplicate
	resp = testutil.MakeAuthRequest(router, http.MethodPost, "/proposals", req, token)
	testutil.AssertErrorCode(t, resp, testutil.ErrorCodeConflict)

	gov.err = errors.New("db down")
	resp = testutil.MakeAuthRequest(router, http.MethodPost, "/proposals", req, token)
	testutil.AssertErrorCode(t, resp, testutil.ErrorCodeInternalError)
}

func TestSubmitProposal(t *testing.T) {
	router, gov, _, token := setup(t)
	path := "/proposals/" + uuid.NewString() + "/submit"

	resp := testutil.MakeAuthRequest(router, http.MethodPost, path, portal.SubmitProposalRequest{CollateralTxID: "ab"}, token)
	testutil.AssertHTTPStatus(t, resp, http.StatusOK)
	if gov.txid != "ab" {
		t.Fatalf("expected txid passed through, got %q", gov.txid)
	}

	gov.err = service.ErrForbidden
	resp = testutil.MakeAuthRequest(router, http.MethodPost, path, portal.SubmitProposalRequest{CollateralTxID: "ab"}, token)
	testutil.AssertErrorCode(t, resp, testutil.ErrorCodeForbidden)

	gov.err = storage.ErrNotDraft
	resp = testutil.MakeAuthRequest(router, http.MethodPost, path, portal.SubmitProposalRequest{CollateralTxID: "ab"}, token)
	testutil.AssertErrorCode(t, resp, testutil.ErrorCodeConflict)
}

func TestVoteProposal(t *testing.T) {
	router, gov, userID, token := setup(t)
	path := "/proposals/" + uuid.NewString() + "/vote"
	req := portal.VoteRequest{Outcome: "yes", Masternodes: []uuid.UUID{uuid.New(), uuid.New()}}

	resp := testutil.MakeAuthRequest(router, http.MethodPost, path, req, token)
	testutil.AssertHTTPStatus(t, resp, http.StatusOK)
	var res portal.VoteResult
	if err := json.Unmarshal(resp.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Recorded != 2 || gov.owner != userID || gov.vote.Outcome != "yes" {
		t.Fatalf("unexpected vote: %+v", res)
	}

	gov.err = service.ErrNotSubmitted
	resp = testutil.MakeAuthRequest(router, http.MethodPost, path, req, token)
	testutil.AssertErrorCode(t, resp, testutil.ErrorCodeConflict)
}
