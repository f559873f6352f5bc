package routes

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/ledgerpay/ledgerpay/internal/config"
	"github.com/ledgerpay/ledgerpay/internal/logging"
	"github.com/ledgerpay/ledgerpay/internal/token"
)

const testSecret = "route-test-secret"

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	app := fiber.New()
	deps := Deps{
		Cfg:    config.Config{JWTSecret: testSecret},
		Logger: logging.Discard(),
	}
	if err := Setup(app, deps); err != nil {
		t.Fatalf("setup routes: %v", err)
	}
	return app
}

func mintToken(t *testing.T, userID string) string {
	t.Helper()
	tok, err := token.Sign(map[string]any{"sub": userID, "role": "user"}, []byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

func doJSON(t *testing.T, app *fiber.App, method, path, bearer, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if bearer != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+bearer)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var decoded map[string]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			t.Fatalf("decode body %q: %v", raw, err)
		}
	}
	return resp.StatusCode, decoded
}

func TestHealthEndpoint(t *testing.T) {
	app := newTestApp(t)

	status, body := doJSON(t, app, fiber.MethodGet, "/healthz", "", "")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if body["status"] == nil {
		t.Fatalf("expected status payload, got %v", body)
	}
}

func TestAPIRequiresAuthentication(t *testing.T) {
	app := newTestApp(t)

	status, _ := doJSON(t, app, fiber.MethodGet, "/api/v1/accounts", "", "")
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", status)
	}
}

func TestAccountAndTransactionFlow(t *testing.T) {
	app := newTestApp(t)
	bearer := mintToken(t, "user-flow-1")

	status, created := doJSON(t, app, fiber.MethodPost, "/api/v1/accounts", bearer,
		`{"account_type":"checking","currency":"USD"}`)
	if status != http.StatusCreated {
		t.Fatalf("create account: expected 201, got %d (%v)", status, created)
	}
	accountID, _ := created["id"].(string)
	if accountID == "" {
		t.Fatalf("missing account id in %v", created)
	}
	if number, _ := created["account_number"].(string); !strings.HasPrefix(number, "WS") {
		t.Fatalf("unexpected account number %q", number)
	}

	status, listed := doJSON(t, app, fiber.MethodGet, "/api/v1/accounts", bearer, "")
	if status != http.StatusOK {
		t.Fatalf("list accounts: expected 200, got %d", status)
	}
	if accounts, _ := listed["accounts"].([]any); len(accounts) != 1 {
		t.Fatalf("expected one account, got %v", listed)
	}

	status, txn := doJSON(t, app, fiber.MethodPost, "/api/v1/transactions", bearer,
		fmt.Sprintf(`{"account_id":%q,"transaction_type":"deposit","amount":100}`, accountID))
	if status != http.StatusCreated {
		t.Fatalf("create deposit: expected 201, got %d (%v)", status, txn)
	}
	if s, _ := txn["status"].(string); s != "pending" {
		t.Fatalf("expected pending transaction, got %v", txn)
	}
	txnID, _ := txn["id"].(string)

	status, settled := doJSON(t, app, fiber.MethodPost, "/api/v1/transactions/"+txnID+"/process", bearer, "")
	if status != http.StatusOK {
		t.Fatalf("process deposit: expected 200, got %d (%v)", status, settled)
	}
	if s, _ := settled["status"].(string); s != "completed" {
		t.Fatalf("expected completed transaction, got %v", settled)
	}

	status, balance := doJSON(t, app, fiber.MethodGet, "/api/v1/accounts/"+accountID+"/balance", bearer, "")
	if status != http.StatusOK {
		t.Fatalf("balance: expected 200, got %d", status)
	}
	if b, _ := balance["balance"].(string); b != "100" {
		t.Fatalf("expected balance 100, got %v", balance)
	}
	if b, _ := balance["available_balance"].(string); b != "100" {
		t.Fatalf("expected available 100, got %v", balance)
	}

	status, rejected := doJSON(t, app, fiber.MethodPost, "/api/v1/transactions", bearer,
		fmt.Sprintf(`{"account_id":%q,"transaction_type":"withdrawal","amount":500}`, accountID))
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("oversized withdrawal: expected 422, got %d (%v)", status, rejected)
	}

	status, history := doJSON(t, app, fiber.MethodGet, "/api/v1/accounts/"+accountID+"/transactions", bearer, "")
	if status != http.StatusOK {
		t.Fatalf("history: expected 200, got %d", status)
	}
	if txns, _ := history["transactions"].([]any); len(txns) != 1 {
		t.Fatalf("expected one transaction in history, got %v", history)
	}
}

func TestAccountsAreOwnerScoped(t *testing.T) {
	app := newTestApp(t)
	owner := mintToken(t, "user-owner")
	intruder := mintToken(t, "user-intruder")

	status, created := doJSON(t, app, fiber.MethodPost, "/api/v1/accounts", owner,
		`{"account_type":"savings"}`)
	if status != http.StatusCreated {
		t.Fatalf("create account: expected 201, got %d", status)
	}
	accountID, _ := created["id"].(string)

	status, _ = doJSON(t, app, fiber.MethodGet, "/api/v1/accounts/"+accountID, intruder, "")
	if status != http.StatusNotFound {
		t.Fatalf("foreign read: expected 404, got %d", status)
	}
	status, _ = doJSON(t, app, fiber.MethodGet, "/api/v1/accounts/"+accountID, owner, "")
	if status != http.StatusOK {
		t.Fatalf("owner read: expected 200, got %d", status)
	}
}
