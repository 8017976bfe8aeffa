package handlers

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/osiastedian/syshub/libs/challenge"
	"github.com/osiastedian/syshub/libs/logging"
	"github.com/osiastedian/syshub/libs/password"
	"github.com/osiastedian/syshub/libs/portal"
	"github.com/osiastedian/syshub/libs/rate"
	"github.com/osiastedian/syshub/services/testutil"
	"github.com/osiastedian/syshub/services/user/internal/storage"
)

func TestUserIntegration(t *testing.T) {
	if os.Getenv("RUN_DB_INTEGRATION") == "" {
		t.Skip("set RUN_DB_INTEGRATION=1 to run")
	}

	pool, err := testutil.SetupTestDB()
	if err != nil {
		t.Skipf("db connection failed: %v", err)
	}
	defer pool.Close()
	ctx := context.Background()
	defer func() {
		_ = testutil.CleanupTestData(ctx, pool)
	}()

	gin.SetMode(gin.TestMode)
	handler := New(storage.New(pool), logging.Discard(), []byte(testSecret), challenge.NewMemoryStore(0, 0), rate.NewMemory(rate.DefaultCodeChecks, rate.DefaultCodeWindow), nil)
	router := gin.New()
	handler.Register(router)

	sessionID := uuid.NewString()
	token, _ := testutil.GenerateJWT(testutil.DemoUserID, sessionID, []byte(testSecret), 15*time.Minute, time.Now())

	t.Run("read own profile", func(t *testing.T) {
		resp := testutil.MakeAuthRequest(router, http.MethodGet, "/user/"+testutil.DemoUserID.String(), nil, token)
		testutil.AssertHTTPStatus(t, resp, http.StatusOK)
		if out := decodeUser(t, resp); out.Email != testutil.DemoEmail {
			t.Fatalf("expected demo user, got %+v", out)
		}
	})

	t.Run("other profile forbidden", func(t *testing.T) {
		resp := testutil.MakeAuthRequest(router, http.MethodGet, "/user/"+testutil.SecureUserID.String(), nil, token)
		testutil.AssertErrorCode(t, resp, testutil.ErrorCodeForbidden)
	})

	t.Run("update voting address", func(t *testing.T) {
		resp := testutil.MakeAuthRequest(router, http.MethodPut, "/user/"+testutil.DemoUserID.String(), portal.UpdateUserRequest{
			VotingAddress: strPtr(votingAddress),
		}, token)
		testutil.AssertHTTPStatus(t, resp, http.StatusOK)
		if out := decodeUser(t, resp); out.VotingAddress != votingAddress {
			t.Fatalf("expected voting address stored, got %+v", out)
		}
	})

	t.Run("delete account", func(t *testing.T) {
		hash, err := password.Hash(testPassword, password.DefaultParams())
		if err != nil {
			t.Fatalf("hash: %v", err)
		}
		var userID uuid.UUID
		if err := pool.QueryRow(ctx, `
			INSERT INTO users (email, password_hash, status, created_at, updated_at)
			VALUES ('leaving@example.com', $1, 'active', now(), now())
			RETURNING id
		`, hash).Scan(&userID); err != nil {
			t.Fatalf("create user: %v", err)
		}
		if _, err := pool.Exec(ctx, `
			INSERT INTO masternodes (collateral_txid, collateral_index, address, ip, owner_id)
			VALUES ('f00d', 0, $1, '10.0.0.1:8369', $2)
		`, votingAddress, userID); err != nil {
			t.Fatalf("create masternode: %v", err)
		}

		access, _ := testutil.GenerateJWT(userID, sessionID, []byte(testSecret), 15*time.Minute, time.Now())
		reauth, _ := testutil.GenerateReauthJWT(userID, sessionID, []byte(testSecret), time.Now())
		resp := testutil.MakeRequest(router, http.MethodDelete, "/user/"+userID.String(), nil, map[string]string{
			"Authorization":     "Bearer " + access,
			portal.ReauthHeader: reauth,
		})
		testutil.AssertHTTPStatus(t, resp, http.StatusNoContent)

		var owned int
		if err := pool.QueryRow(ctx, `SELECT count(*) FROM masternodes WHERE collateral_txid = 'f00d' AND owner_id IS NULL`).Scan(&owned); err != nil {
			t.Fatalf("query masternode: %v", err)
		}
		if owned != 1 {
			t.Fatalf("expected masternode kept without owner")
		}
		_, _ = pool.Exec(ctx, `DELETE FROM masternodes WHERE collateral_txid = 'f00d'`)
	})
}
