package v1_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"osaccount/internal/boot"
	"osaccount/internal/service"
	"osaccount/pkg/config"
	"osaccount/pkg/database"
	"osaccount/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"golang.org/x/crypto/bcrypt"
)

const callerSecret = "caller-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	engine   *gin.Engine
	services *boot.Services
	cfg      *config.Config
}

// envelope 统一响应结构，Data保留原始JSON
type envelope struct {
	Code       int             `json:"code"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
	Error      string          `json:"error"`
	ResultCode *int32          `json:"result_code"`
	KitCode    int             `json:"kit_code"`
}

func newTestServer(t *testing.T, authEnabled bool) *testServer {
	t.Helper()
	dir := t.TempDir()

	cfg, err := config.LoadConfig("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	cfg.Database = database.Config{
		Driver:   database.DriverSQLite,
		Path:     filepath.Join(dir, "test.db"),
		LogLevel: "silent",
	}
	cfg.Audit.LogDir = filepath.Join(dir, "audit")
	cfg.Server.AuthEnabled = authEnabled
	cfg.Server.CallerSecret = callerSecret
	cfg.IDM.TokenSecret = "token-secret"
	cfg.Executors.TemplateKey = strings.Repeat("ab", 32)
	cfg.Executors.PIN.BcryptCost = bcrypt.MinCost

	db, err := boot.InitDB(&cfg.Database)
	if err != nil {
		t.Fatalf("init db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	clock := clockwork.NewRealClock()
	repos := boot.InitRepositories(db, nil, nil, clock)
	auditComponents, err := boot.InitAudit(&cfg.Audit, clock)
	if err != nil {
		t.Fatalf("init audit: %v", err)
	}
	t.Cleanup(func() { auditComponents.Close() })

	ctx := service.WithCaller(context.Background(), service.SystemCaller())
	services, err := boot.InitServices(ctx, cfg, repos, auditComponents, clock)
	if err != nil {
		t.Fatalf("init services: %v", err)
	}
	t.Cleanup(services.Close)

	engine := gin.New()
	boot.InitRouter(engine, boot.InitHandlers(services, auditComponents, cfg), services, cfg)
	return &testServer{engine: engine, services: services, cfg: cfg}
}

// token 为uid签发调用方令牌
func (s *testServer) token(t *testing.T, uid int, permissions ...string) string {
	t.Helper()
	token, err := middleware.IssueCallerToken([]byte(callerSecret), uid, permissions, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return token
}

// do 发起请求并解析统一响应
func (s *testServer) do(t *testing.T, method, path string, body interface{}, token string) (int, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", middleware.BearerSchema+token)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var resp envelope
	if w.Body.Len() > 0 && strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode %s %s: %v (%s)", method, path, err, w.Body)
		}
	}
	return w.Code, resp
}

// mustDo 要求请求成功并把data解码到out
func (s *testServer) mustDo(t *testing.T, method, path string, body, out interface{}) {
	t.Helper()
	code, resp := s.do(t, method, path, body, "")
	if code != http.StatusOK {
		t.Fatalf("%s %s: status = %d, error = %s", method, path, code, resp.Error)
	}
	if out != nil {
		if err := json.Unmarshal(resp.Data, out); err != nil {
			t.Fatalf("%s %s: decode data: %v (%s)", method, path, err, resp.Data)
		}
	}
}

func wantResultCode(t *testing.T, resp envelope, want int32) {
	t.Helper()
	if resp.ResultCode == nil {
		t.Fatalf("missing result_code, error = %s", resp.Error)
	}
	if *resp.ResultCode != want {
		t.Fatalf("result_code = %d, want %d (error = %s)", *resp.ResultCode, want, resp.Error)
	}
}
