package v1_test

import (
	"encoding/json"
	"net/http"
	"testing"

	v1 "osaccount/api/v1"
	"osaccount/internal/audit"
	"osaccount/internal/model"
	"osaccount/internal/service"
)

func TestIDMSessionRoutes(t *testing.T) {
	s := newTestServer(t, false)

	var opened v1.ChallengeResponse
	s.mustDo(t, http.MethodPost, "/api/v1/idm/100/session", nil, &opened)
	if opened.Challenge == 0 {
		t.Fatal("zero challenge")
	}

	code, resp := s.do(t, http.MethodPost, "/api/v1/idm/100/session", nil, "")
	if code != http.StatusConflict {
		t.Fatalf("second open status = %d, want 409", code)
	}
	wantResultCode(t, resp, int32(model.ResultBusy))

	var renewed v1.ChallengeResponse
	s.mustDo(t, http.MethodPost, "/api/v1/idm/100/challenge", nil, &renewed)
	if renewed.Challenge == 0 || renewed.Challenge == opened.Challenge {
		t.Errorf("renewed challenge = %d, opened = %d", renewed.Challenge, opened.Challenge)
	}

	var infos []model.EnrolledCredInfo
	s.mustDo(t, http.MethodGet, "/api/v1/idm/100/credentials?auth_type=1", nil, &infos)
	if len(infos) != 0 {
		t.Errorf("credentials = %v, want none", infos)
	}

	code, resp = s.do(t, http.MethodDelete, "/api/v1/idm/100/credentials", v1.TokenRequest{}, "")
	if code != http.StatusBadRequest {
		t.Fatalf("del user without token status = %d, want 400", code)
	}
	if resp.KitCode != service.OpDelUser.Code {
		t.Errorf("kit_code = %d, want %d", resp.KitCode, service.OpDelUser.Code)
	}

	code, _ = s.do(t, http.MethodPost, "/api/v1/idm/cancel", map[string]string{"challenge": "12345"}, "")
	if code != http.StatusBadRequest {
		t.Errorf("cancel unknown challenge status = %d, want 400", code)
	}

	s.mustDo(t, http.MethodDelete, "/api/v1/idm/100/session", nil, nil)
	code, _ = s.do(t, http.MethodPost, "/api/v1/idm/100/challenge", nil, "")
	if code == http.StatusOK {
		t.Error("renew after close succeeded")
	}
}

func TestIDMRequiresPermission(t *testing.T) {
	s := newTestServer(t, true)

	token := s.token(t, 100*model.UIDPerAccount, model.PermissionUseUserIDM)
	code, resp := s.do(t, http.MethodPost, "/api/v1/idm/100/session", nil, token)
	if code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", code)
	}
	if resp.KitCode != service.OpOpenSession.Code {
		t.Errorf("kit_code = %d", resp.KitCode)
	}

	// USE_USER_IDM 足以查询凭据
	if code, _ := s.do(t, http.MethodGet, "/api/v1/idm/100/credentials", nil, token); code != http.StatusOK {
		t.Errorf("get auth info status = %d", code)
	}
}

func TestUserAuthRoutes(t *testing.T) {
	s := newTestServer(t, false)

	var status v1.StatusResponse
	s.mustDo(t, http.MethodGet, "/api/v1/auth/status?auth_type=1&trust_level=10000", nil, &status)
	if status.Status != model.ResultNotEnrolled || status.StatusName != "NOT_ENROLLED" {
		t.Errorf("status = %+v", status)
	}

	code, _ := s.do(t, http.MethodGet, "/api/v1/auth/status?trust_level=10000", nil, "")
	if code != http.StatusBadRequest {
		t.Errorf("missing auth_type status = %d, want 400", code)
	}

	code, resp := s.do(t, http.MethodPost, "/api/v1/auth/property/get", model.GetPropertyRequest{
		AuthType: model.AuthTypePIN,
		Keys:     []model.GetPropertyType{model.GetPropertyRemainTimes},
	}, "")
	if code != http.StatusUnprocessableEntity {
		t.Fatalf("get property status = %d, want 422", code)
	}
	wantResultCode(t, resp, int32(model.ResultNotEnrolled))

	code, resp = s.do(t, http.MethodPost, "/api/v1/auth/cancel", map[string]string{"context_id": "42"}, "")
	if code != http.StatusNotFound {
		t.Fatalf("cancel status = %d, want 404", code)
	}
	if resp.KitCode != service.OpCancelAuth.Code {
		t.Errorf("kit_code = %d", resp.KitCode)
	}
}

func TestAuditRoutes(t *testing.T) {
	s := newTestServer(t, false)
	s.mustDo(t, http.MethodPost, "/api/v1/accounts", model.CreateOsAccountRequest{
		LocalName: "audited",
		Type:      model.OsAccountTypeNormal,
	}, nil)

	var page struct {
		Total int               `json:"total"`
		Items []*audit.AuditLog `json:"items"`
	}
	s.mustDo(t, http.MethodGet, "/api/v1/audit/logs?event_types=account_create", nil, &page)
	if page.Total != 1 || page.Items[0].LocalID != 101 {
		t.Fatalf("logs = %+v", page)
	}
	if page.Items[0].Details["local_name"] != "audited" {
		t.Errorf("details = %v", page.Items[0].Details)
	}

	var verify audit.VerifyResult
	s.mustDo(t, http.MethodGet, "/api/v1/audit/verify", nil, &verify)
	if !verify.Valid || verify.Total == 0 {
		t.Errorf("verify = %+v", verify)
	}
}

func TestAuditRequiresManagePermission(t *testing.T) {
	s := newTestServer(t, true)
	token := s.token(t, 100*model.UIDPerAccount, model.PermissionUseUserIDM)
	if code, _ := s.do(t, http.MethodGet, "/api/v1/audit/logs", nil, token); code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", code)
	}

	admin := s.token(t, 100*model.UIDPerAccount, model.PermissionManageLocalAccounts)
	code, resp := s.do(t, http.MethodGet, "/api/v1/audit/logs", nil, admin)
	if code != http.StatusOK {
		t.Fatalf("admin status = %d", code)
	}
	var page map[string]json.RawMessage
	if err := json.Unmarshal(resp.Data, &page); err != nil {
		t.Fatal(err)
	}
	if _, ok := page["items"]; !ok {
		t.Errorf("data = %s", resp.Data)
	}
}
