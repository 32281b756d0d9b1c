package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"house-of-david/backend/internal/api/middleware"
	"house-of-david/backend/internal/dto"
	"house-of-david/backend/internal/model"
	"house-of-david/backend/internal/service"
	"house-of-david/backend/pkg/response"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ═══════════════════════════════════════════════════════════
// Mock Services
// ═══════════════════════════════════════════════════════════

// ── Mock AttendanceService ──

type mockAttendanceService struct {
	activeResult  *dto.ActiveSessionResponse
	activeErr     error
	signResult    *dto.SignAttendanceResponse
	signErr       error
	signRemote    string
	signReq       *dto.SignAttendanceRequest
	signCalled    bool
	sessionResult *dto.SessionResponse
	sessionErr    error
	listResult    []dto.SessionResponse
	listErr       error
	deleteErr     error
	lastActor     string
}

func (m *mockAttendanceService) GetActive(_ context.Context) (*dto.ActiveSessionResponse, error) {
	return m.activeResult, m.activeErr
}
func (m *mockAttendanceService) Sign(_ context.Context, _ string, req *dto.SignAttendanceRequest, remoteAddr string) (*dto.SignAttendanceResponse, error) {
	m.signCalled = true
	m.signReq = req
	m.signRemote = remoteAddr
	return m.signResult, m.signErr
}
func (m *mockAttendanceService) Open(_ context.Context, _ *dto.CreateSessionRequest, creatorID string) (*dto.SessionResponse, error) {
	m.lastActor = creatorID
	return m.sessionResult, m.sessionErr
}
func (m *mockAttendanceService) Close(_ context.Context, _ string, closerID string) (*dto.SessionResponse, error) {
	m.lastActor = closerID
	return m.sessionResult, m.sessionErr
}
func (m *mockAttendanceService) Refresh(_ context.Context, _ string) (*dto.SessionResponse, error) {
	return m.sessionResult, m.sessionErr
}
func (m *mockAttendanceService) Delete(_ context.Context, _ string) error {
	return m.deleteErr
}
func (m *mockAttendanceService) List(_ context.Context) ([]dto.SessionResponse, error) {
	return m.listResult, m.listErr
}
func (m *mockAttendanceService) Get(_ context.Context, _ string) (*dto.SessionResponse, error) {
	return m.sessionResult, m.sessionErr
}

// ── Mock StatsService ──

type mockStatsService struct {
	statsResult *dto.AttendanceStatsResponse
	orgResult   *dto.OrgAttendanceStatsResponse
	err         error
	lastUserID  string
}

func (m *mockStatsService) MyStats(_ context.Context, userID string) (*dto.AttendanceStatsResponse, error) {
	m.lastUserID = userID
	return m.statsResult, m.err
}
func (m *mockStatsService) MemberStats(_ context.Context, _ string) (*dto.AttendanceStatsResponse, error) {
	return m.statsResult, m.err
}
func (m *mockStatsService) OrgStats(_ context.Context) (*dto.OrgAttendanceStatsResponse, error) {
	return m.orgResult, m.err
}

// ── Mock AuthService ──

type mockAuthService struct {
	loginResult *dto.TokenResponse
	loginErr    error
	logoutJTI   string
	logoutErr   error
	meResult    *dto.UserResponse
	meErr       error
}

func (m *mockAuthService) Login(_ context.Context, _ *dto.LoginRequest) (*dto.TokenResponse, error) {
	return m.loginResult, m.loginErr
}
func (m *mockAuthService) Logout(_ context.Context, jti string, _ time.Time) error {
	m.logoutJTI = jti
	return m.logoutErr
}
func (m *mockAuthService) GetCurrentUser(_ context.Context, _ string) (*dto.UserResponse, error) {
	return m.meResult, m.meErr
}

// ── Mock ExportService ──

type mockExportService struct {
	buf      *bytes.Buffer
	filename string
	ics      []byte
	err      error
}

func (m *mockExportService) ExportSession(_ context.Context, _ string) (*bytes.Buffer, string, error) {
	return m.buf, m.filename, m.err
}
func (m *mockExportService) ExportCalendar(_ context.Context) ([]byte, error) {
	return m.ics, m.err
}

// ═══════════════════════════════════════════════════════════
// Test Helpers
// ═══════════════════════════════════════════════════════════

// withAuth 模拟 JWTAuth 注入的上下文
func withAuth(c *gin.Context) {
	c.Set(middleware.ContextUserID, "admin-1")
	c.Set(middleware.ContextRoles, model.NewRoleSet(model.RoleUser, model.RoleAdmin))
	c.Set(middleware.ContextTokenJTI, "test-jti")
	c.Set(middleware.ContextTokenExp, time.Now().Add(15*time.Minute))
	c.Next()
}

func jsonBody(v interface{}) io.Reader {
	b, _ := json.Marshal(v)
	return bytes.NewReader(b)
}

func doRequest(r *gin.Engine, method, path string, body io.Reader) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	r.ServeHTTP(w, req)
	return w
}

func parseResponse(w *httptest.ResponseRecorder) response.Response {
	var resp response.Response
	json.Unmarshal(w.Body.Bytes(), &resp)
	return resp
}

func newAttendanceRouter(svc service.AttendanceService) *gin.Engine {
	h := NewAttendanceHandler(svc)
	r := gin.New()
	r.GET("/attendance-sessions/active", h.GetActive)
	r.POST("/attendance-sessions/:id/sign", h.Sign)
	admin := r.Group("/attendance-sessions", withAuth)
	admin.POST("", h.Open)
	admin.GET("", h.List)
	admin.GET("/:id", h.Get)
	admin.PUT("/:id/close", h.Close)
	admin.PUT("/:id/refresh", h.Refresh)
	admin.DELETE("/:id", h.Delete)
	return r
}

var validSign = dto.SignAttendanceRequest{
	FullName:    "张三",
	PhoneNumber: "0712345678",
	Signature:   "data:image/png;base64,AAAA",
}

// ═══════════════════════════════════════════════════════════
// AttendanceHandler Tests
// ═══════════════════════════════════════════════════════════

func TestAttendanceHandler_GetActive(t *testing.T) {
	mock := &mockAttendanceService{activeResult: &dto.ActiveSessionResponse{ID: "s-1", SignatureCount: 3}}
	r := newAttendanceRouter(mock)

	w := doRequest(r, http.MethodGet, "/attendance-sessions/active", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("期望 200，实际=%d", w.Code)
	}
	resp := parseResponse(w)
	if !resp.Success {
		t.Error("期望 success=true")
	}
	data := resp.Data.(map[string]interface{})
	if data["_id"] != "s-1" || data["signatureCount"].(float64) != 3 {
		t.Errorf("响应数据不符: %v", data)
	}
	if _, ok := data["signatures"]; ok {
		t.Error("公开接口不应返回签名列表")
	}
}

func TestAttendanceHandler_GetActive_None(t *testing.T) {
	r := newAttendanceRouter(&mockAttendanceService{})

	w := doRequest(r, http.MethodGet, "/attendance-sessions/active", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("期望 200，实际=%d", w.Code)
	}
	resp := parseResponse(w)
	if !resp.Success || resp.Data != nil || resp.Message == "" {
		t.Errorf("无开放会话时期望 success=true、data 为空并附带提示，实际=%+v", resp)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(w.Body.Bytes(), &raw); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if v, ok := raw["data"]; !ok || string(v) != "null" {
		t.Errorf("期望显式返回 data: null，实际=%s", w.Body.String())
	}
}

func TestAttendanceHandler_Sign_Success(t *testing.T) {
	mock := &mockAttendanceService{signResult: &dto.SignAttendanceResponse{SignatureCount: 5, LinkedToAccount: true}}
	r := newAttendanceRouter(mock)

	w := doRequest(r, http.MethodPost, "/attendance-sessions/s-1/sign", jsonBody(validSign))
	if w.Code != http.StatusOK {
		t.Fatalf("期望 200，实际=%d (%s)", w.Code, w.Body.String())
	}
	data := parseResponse(w).Data.(map[string]interface{})
	if data["signatureCount"].(float64) != 5 || data["linkedToAccount"] != true {
		t.Errorf("响应数据不符: %v", data)
	}
	if mock.signRemote == "" {
		t.Error("期望传入客户端 IP")
	}
}

func TestAttendanceHandler_Sign_FreeFormPhone(t *testing.T) {
	phones := []string{"12345", "0712.345.678", "0712345678 ext 9"}
	for _, phone := range phones {
		t.Run(phone, func(t *testing.T) {
			mock := &mockAttendanceService{signResult: &dto.SignAttendanceResponse{SignatureCount: 1}}
			r := newAttendanceRouter(mock)
			req := validSign
			req.PhoneNumber = phone

			w := doRequest(r, http.MethodPost, "/attendance-sessions/s-1/sign", jsonBody(req))
			if w.Code != http.StatusOK {
				t.Errorf("期望 200，实际=%d", w.Code)
			}
			if !mock.signCalled || mock.signReq.PhoneNumber != phone {
				t.Errorf("期望手机号原样交给 Service，实际=%+v", mock.signReq)
			}
		})
	}
}

func TestAttendanceHandler_Sign_ClosedWithOddPhone(t *testing.T) {
	mock := &mockAttendanceService{signErr: service.ErrSessionClosed}
	r := newAttendanceRouter(mock)
	req := validSign
	req.PhoneNumber = "12345"

	w := doRequest(r, http.MethodPost, "/attendance-sessions/s-1/sign", jsonBody(req))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("期望 400，实际=%d", w.Code)
	}
	if !mock.signCalled {
		t.Fatal("期望请求到达 Service")
	}
	if msg := parseResponse(w).Message; msg != service.ErrSessionClosed.Error() {
		t.Errorf("期望会话已关闭提示，实际=%q", msg)
	}
}

func TestAttendanceHandler_Sign_BadJSON(t *testing.T) {
	r := newAttendanceRouter(&mockAttendanceService{})

	w := doRequest(r, http.MethodPost, "/attendance-sessions/s-1/sign", strings.NewReader("{invalid"))
	if w.Code != http.StatusBadRequest {
		t.Errorf("期望 400，实际=%d", w.Code)
	}
}

func TestAttendanceHandler_Sign_TooLarge(t *testing.T) {
	h := NewAttendanceHandler(&mockAttendanceService{})
	r := gin.New()
	r.POST("/attendance-sessions/:id/sign", middleware.BodyLimit(32), h.Sign)

	// 未声明长度的请求体在读取时超限
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/attendance-sessions/s-1/sign", jsonBody(validSign))
	req.ContentLength = -1
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("期望 413，实际=%d", w.Code)
	}
}

func TestAttendanceHandler_Sign_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"缺少字段", service.ErrSignatureFieldsRequired, http.StatusBadRequest},
		{"会话不存在", service.ErrSessionNotFound, http.StatusNotFound},
		{"会话已关闭", service.ErrSessionClosed, http.StatusBadRequest},
		{"重复签到", service.ErrDuplicateSignature, http.StatusBadRequest},
		{"未知错误", errors.New("db timeout"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newAttendanceRouter(&mockAttendanceService{signErr: tt.err})
			w := doRequest(r, http.MethodPost, "/attendance-sessions/s-1/sign", jsonBody(validSign))

			if w.Code != tt.want {
				t.Errorf("期望 %d，实际=%d", tt.want, w.Code)
			}
			resp := parseResponse(w)
			if resp.Success || resp.Message != tt.err.Error() {
				t.Errorf("期望 message=%q，实际=%+v", tt.err.Error(), resp)
			}
		})
	}
}

func TestAttendanceHandler_Open(t *testing.T) {
	mock := &mockAttendanceService{sessionResult: &dto.SessionResponse{ID: "s-1", Status: "Active"}}
	r := newAttendanceRouter(mock)

	w := doRequest(r, http.MethodPost, "/attendance-sessions", jsonBody(dto.CreateSessionRequest{SessionName: "周日礼拜"}))
	if w.Code != http.StatusCreated {
		t.Fatalf("期望 201，实际=%d", w.Code)
	}
	if mock.lastActor != "admin-1" {
		t.Errorf("期望创建人=admin-1，实际=%s", mock.lastActor)
	}
}

func TestAttendanceHandler_Open_Conflict(t *testing.T) {
	r := newAttendanceRouter(&mockAttendanceService{sessionErr: service.ErrSessionOpenConflict})

	w := doRequest(r, http.MethodPost, "/attendance-sessions", jsonBody(dto.CreateSessionRequest{SessionName: "周日礼拜"}))
	if w.Code != http.StatusConflict {
		t.Errorf("期望 409，实际=%d", w.Code)
	}
}

func TestAttendanceHandler_List_Count(t *testing.T) {
	mock := &mockAttendanceService{listResult: []dto.SessionResponse{{ID: "s-1"}, {ID: "s-2"}}}
	r := newAttendanceRouter(mock)

	w := doRequest(r, http.MethodGet, "/attendance-sessions", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("期望 200，实际=%d", w.Code)
	}
	resp := parseResponse(w)
	if resp.Count == nil || *resp.Count != 2 {
		t.Errorf("期望 count=2，实际=%v", resp.Count)
	}
}

func TestAttendanceHandler_CloseRefreshDelete(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		mock   *mockAttendanceService
		want   int
	}{
		{"关闭成功", http.MethodPut, "/attendance-sessions/s-1/close", &mockAttendanceService{sessionResult: &dto.SessionResponse{ID: "s-1"}}, http.StatusOK},
		{"关闭不存在", http.MethodPut, "/attendance-sessions/x/close", &mockAttendanceService{sessionErr: service.ErrSessionNotFound}, http.StatusNotFound},
		{"刷新成功", http.MethodPut, "/attendance-sessions/s-1/refresh", &mockAttendanceService{sessionResult: &dto.SessionResponse{ID: "s-1"}}, http.StatusOK},
		{"刷新已关闭", http.MethodPut, "/attendance-sessions/s-1/refresh", &mockAttendanceService{sessionErr: service.ErrSessionNotRefreshable}, http.StatusBadRequest},
		{"删除成功", http.MethodDelete, "/attendance-sessions/s-1", &mockAttendanceService{}, http.StatusOK},
		{"删除不存在", http.MethodDelete, "/attendance-sessions/x", &mockAttendanceService{deleteErr: service.ErrSessionNotFound}, http.StatusNotFound},
		{"详情不存在", http.MethodGet, "/attendance-sessions/x", &mockAttendanceService{sessionErr: service.ErrSessionNotFound}, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newAttendanceRouter(tt.mock)
			w := doRequest(r, tt.method, tt.path, nil)
			if w.Code != tt.want {
				t.Errorf("期望 %d，实际=%d", tt.want, w.Code)
			}
		})
	}
}

func TestAttendanceHandler_Open_Unauthenticated(t *testing.T) {
	h := NewAttendanceHandler(&mockAttendanceService{})
	r := gin.New()
	r.POST("/attendance-sessions", h.Open)

	w := doRequest(r, http.MethodPost, "/attendance-sessions", jsonBody(dto.CreateSessionRequest{SessionName: "x"}))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("期望 401，实际=%d", w.Code)
	}
}

// ═══════════════════════════════════════════════════════════
// StatsHandler Tests
// ═══════════════════════════════════════════════════════════

func TestStatsHandler(t *testing.T) {
	mock := &mockStatsService{
		statsResult: &dto.AttendanceStatsResponse{TotalSessions: 5, Attended: 2, Missed: 3, AttendanceRate: 40},
		orgResult:   &dto.OrgAttendanceStatsResponse{TotalSessions: 3, OrganizationAttendanceRate: 30},
	}
	h := NewStatsHandler(mock)
	r := gin.New()
	r.GET("/my-stats", withAuth, h.MyStats)
	r.GET("/member/:id/stats", h.MemberStats)
	r.GET("/org-stats", h.OrgStats)

	w := doRequest(r, http.MethodGet, "/my-stats", nil)
	if w.Code != http.StatusOK || mock.lastUserID != "admin-1" {
		t.Errorf("my-stats: 期望 200 且按当前用户统计，实际=%d %s", w.Code, mock.lastUserID)
	}

	w = doRequest(r, http.MethodGet, "/org-stats", nil)
	data := parseResponse(w).Data.(map[string]interface{})
	if data["organizationAttendanceRate"].(float64) != 30 {
		t.Errorf("org-stats 数据不符: %v", data)
	}

	mock.err = service.ErrMemberNotFound
	w = doRequest(r, http.MethodGet, "/member/m-x/stats", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("member stats: 期望 404，实际=%d", w.Code)
	}
}

// ═══════════════════════════════════════════════════════════
// AuthHandler Tests
// ═══════════════════════════════════════════════════════════

func TestAuthHandler_Login(t *testing.T) {
	tests := []struct {
		name string
		body io.Reader
		mock *mockAuthService
		want int
	}{
		{"成功", jsonBody(dto.LoginRequest{Email: "a@hod.org", Password: "x"}), &mockAuthService{loginResult: &dto.TokenResponse{AccessToken: "t"}}, http.StatusOK},
		{"邮箱格式错误", jsonBody(dto.LoginRequest{Email: "bad", Password: "x"}), &mockAuthService{}, http.StatusBadRequest},
		{"密码错误", jsonBody(dto.LoginRequest{Email: "a@hod.org", Password: "x"}), &mockAuthService{loginErr: service.ErrInvalidCredentials}, http.StatusUnauthorized},
		{"账号停用", jsonBody(dto.LoginRequest{Email: "a@hod.org", Password: "x"}), &mockAuthService{loginErr: service.ErrUserInactive}, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewAuthHandler(tt.mock)
			r := gin.New()
			r.POST("/auth/login", h.Login)

			w := doRequest(r, http.MethodPost, "/auth/login", tt.body)
			if w.Code != tt.want {
				t.Errorf("期望 %d，实际=%d", tt.want, w.Code)
			}
		})
	}
}

func TestAuthHandler_LogoutAndMe(t *testing.T) {
	mock := &mockAuthService{meResult: &dto.UserResponse{ID: "admin-1", Roles: []string{"user", "admin"}}}
	h := NewAuthHandler(mock)
	r := gin.New()
	r.POST("/auth/logout", withAuth, h.Logout)
	r.GET("/auth/me", withAuth, h.Me)

	w := doRequest(r, http.MethodPost, "/auth/logout", nil)
	if w.Code != http.StatusOK || mock.logoutJTI != "test-jti" {
		t.Errorf("logout: 期望 200 且注销 test-jti，实际=%d %s", w.Code, mock.logoutJTI)
	}

	w = doRequest(r, http.MethodGet, "/auth/me", nil)
	if w.Code != http.StatusOK {
		t.Errorf("me: 期望 200，实际=%d", w.Code)
	}
}

// ═══════════════════════════════════════════════════════════
// ExportHandler Tests
// ═══════════════════════════════════════════════════════════

func TestExportHandler_ExportSession(t *testing.T) {
	mock := &mockExportService{buf: bytes.NewBufferString("xlsx"), filename: "签到名单.xlsx"}
	h := NewExportHandler(mock)
	r := gin.New()
	r.GET("/attendance-sessions/:id/export", h.ExportSession)

	w := doRequest(r, http.MethodGet, "/attendance-sessions/s-1/export", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("期望 200，实际=%d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != xlsxContentType {
		t.Errorf("Content-Type 不符: %s", ct)
	}
	if !strings.Contains(w.Header().Get("Content-Disposition"), "filename*=UTF-8''") {
		t.Errorf("Content-Disposition 不符: %s", w.Header().Get("Content-Disposition"))
	}

	mock.err = service.ErrSessionNotFound
	w = doRequest(r, http.MethodGet, "/attendance-sessions/x/export", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("期望 404，实际=%d", w.Code)
	}
}

func TestExportHandler_ExportCalendar(t *testing.T) {
	mock := &mockExportService{ics: []byte("BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n")}
	h := NewExportHandler(mock)
	r := gin.New()
	r.GET("/calendar.ics", h.ExportCalendar)

	w := doRequest(r, http.MethodGet, "/calendar.ics", nil)
	if w.Code != http.StatusOK || !strings.HasPrefix(w.Header().Get("Content-Type"), "text/calendar") {
		t.Errorf("期望 200 text/calendar，实际=%d %s", w.Code, w.Header().Get("Content-Type"))
	}
}
