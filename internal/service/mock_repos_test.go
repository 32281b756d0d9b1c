package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"house-of-david/backend/internal/model"
	"house-of-david/backend/internal/repository"
	pkgerrors "house-of-david/backend/pkg/errors"
)

// ── Mock UserRepository ──

type mockUserRepo struct {
	mu       sync.Mutex
	users    map[string]*model.User // key: user_id
	phoneErr error                  // 非 nil 时 GetByPhone 返回该错误
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]*model.User)}
}

func (m *mockUserRepo) add(user *model.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.UserID] = user
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockUserRepo) GetByPhone(_ context.Context, phone string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phoneErr != nil {
		return nil, m.phoneErr
	}
	for _, u := range m.users {
		if u.Phone != nil && *u.Phone == phone {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

// ── Mock MemberRepository ──

type mockMemberRepo struct {
	mu       sync.Mutex
	members  map[string]*model.Member
	phoneErr error
}

func newMockMemberRepo() *mockMemberRepo {
	return &mockMemberRepo{members: make(map[string]*model.Member)}
}

func (m *mockMemberRepo) add(member *model.Member) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if member.Status == "" {
		member.Status = model.MemberStatusActive
	}
	m.members[member.MemberID] = member
}

func (m *mockMemberRepo) GetByID(_ context.Context, id string) (*model.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// PostgreSQL 的 uuid 比较不区分大小写
	for key, mem := range m.members {
		if strings.EqualFold(key, id) {
			return mem, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockMemberRepo) GetByPhone(_ context.Context, phone string) (*model.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phoneErr != nil {
		return nil, m.phoneErr
	}
	for _, mem := range m.members {
		if mem.Phone != nil && *mem.Phone == phone {
			return mem, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockMemberRepo) CountActive(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, mem := range m.members {
		if mem.Status == model.MemberStatusActive {
			n++
		}
	}
	return n, nil
}

// ── Mock AttendanceSessionRepository ──
// 互斥锁下模拟事务：单一 Active 会话与 (session_id, phone_number) 唯一约束

type mockSessionRepo struct {
	mu         sync.Mutex
	sessions   map[string]*model.AttendanceSession
	signatures map[string][]model.AttendanceSignature
	nextID     int
	seq        int64
}

func newMockSessionRepo() *mockSessionRepo {
	return &mockSessionRepo{
		sessions:   make(map[string]*model.AttendanceSession),
		signatures: make(map[string][]model.AttendanceSignature),
	}
}

// seed 直接写入会话及签名
func (m *mockSessionRepo) seed(session *model.AttendanceSession, sigs ...model.AttendanceSignature) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if session.SessionID == "" {
		m.nextID++
		session.SessionID = fmt.Sprintf("session-%d", m.nextID)
	}
	m.sessions[session.SessionID] = session
	for _, sig := range sigs {
		m.seq++
		sig.SessionID = session.SessionID
		sig.Seq = m.seq
		if sig.SignatureID == "" {
			sig.SignatureID = fmt.Sprintf("sig-%d", m.seq)
		}
		m.signatures[session.SessionID] = append(m.signatures[session.SessionID], sig)
	}
}

func (m *mockSessionRepo) activeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sessions {
		if s.IsActive() {
			n++
		}
	}
	return n
}

// snapshot 调用方需持有锁
func (m *mockSessionRepo) snapshot(id string, withBlob bool) model.AttendanceSession {
	s := *m.sessions[id]
	s.Signatures = make([]model.AttendanceSignature, 0, len(m.signatures[id]))
	for _, sig := range m.signatures[id] {
		if !withBlob {
			sig.Signature = ""
		}
		s.Signatures = append(s.Signatures, sig)
	}
	return s
}

func (m *mockSessionRepo) Open(_ context.Context, session *model.AttendanceSession) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var closed int64
	for _, s := range m.sessions {
		if s.IsActive() {
			at := session.OpenedAt
			closer := session.CreatedBy
			s.Status = model.SessionStatusClosed
			s.ClosedAt = &at
			s.ClosedBy = &closer
			closed++
		}
	}

	m.nextID++
	session.SessionID = fmt.Sprintf("session-%d", m.nextID)
	session.Status = model.SessionStatusActive
	session.CreatedAt = session.OpenedAt
	session.UpdatedAt = session.OpenedAt
	stored := *session
	m.sessions[session.SessionID] = &stored
	return closed, nil
}

func (m *mockSessionRepo) GetByID(_ context.Context, id string) (*model.AttendanceSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *mockSessionRepo) GetDetail(_ context.Context, id string) (*model.AttendanceSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return nil, gorm.ErrRecordNotFound
	}
	s := m.snapshot(id, true)
	return &s, nil
}

func (m *mockSessionRepo) GetActive(_ context.Context) (*model.AttendanceSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *model.AttendanceSession
	for _, s := range m.sessions {
		if s.IsActive() && (latest == nil || s.OpenedAt.After(latest.OpenedAt)) {
			latest = s
		}
	}
	if latest == nil {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *latest
	return &cp, nil
}

func (m *mockSessionRepo) CountSignatures(_ context.Context, sessionID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.signatures[sessionID])), nil
}

func (m *mockSessionRepo) HasSignature(_ context.Context, sessionID, phone string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sig := range m.signatures[sessionID] {
		if sig.PhoneNumber == phone {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockSessionRepo) sorted(withBlob bool) []model.AttendanceSession {
	result := make([]model.AttendanceSession, 0, len(m.sessions))
	for id := range m.sessions {
		result = append(result, m.snapshot(id, withBlob))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].OpenedAt.After(result[j].OpenedAt)
	})
	return result
}

func (m *mockSessionRepo) List(_ context.Context) ([]model.AttendanceSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(false), nil
}

func (m *mockSessionRepo) ListForStats(_ context.Context) ([]model.AttendanceSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(false), nil
}

func (m *mockSessionRepo) Close(_ context.Context, id, closerID string, closedAt time.Time) (*model.AttendanceSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	s.Status = model.SessionStatusClosed
	s.ClosedAt = &closedAt
	s.ClosedBy = &closerID
	s.UpdatedAt = closedAt
	detail := m.snapshot(id, true)
	return &detail, nil
}

func (m *mockSessionRepo) Refresh(_ context.Context, id string, openedAt time.Time) (*model.AttendanceSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	if !s.IsActive() {
		return nil, pkgerrors.ErrSessionNotActive
	}
	delete(m.signatures, id)
	s.OpenedAt = openedAt
	s.UpdatedAt = openedAt
	detail := m.snapshot(id, false)
	return &detail, nil
}

func (m *mockSessionRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(m.sessions, id)
	delete(m.signatures, id)
	return nil
}

func (m *mockSessionRepo) AppendSignature(_ context.Context, sig *model.AttendanceSignature) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sig.SessionID]
	if !ok {
		return 0, gorm.ErrRecordNotFound
	}
	if !s.IsActive() {
		return 0, pkgerrors.ErrSessionNotActive
	}
	for _, existing := range m.signatures[sig.SessionID] {
		if existing.PhoneNumber == sig.PhoneNumber {
			return 0, pkgerrors.ErrSignatureExists
		}
	}

	m.seq++
	sig.Seq = m.seq
	sig.SignatureID = fmt.Sprintf("sig-%d", m.seq)
	m.signatures[sig.SessionID] = append(m.signatures[sig.SessionID], *sig)
	return int64(len(m.signatures[sig.SessionID])), nil
}

// ── 测试辅助 ──

type mockRepos struct {
	users    *mockUserRepo
	members  *mockMemberRepo
	sessions *mockSessionRepo
}

func newMockRepository() (*repository.Repository, *mockRepos) {
	mocks := &mockRepos{
		users:    newMockUserRepo(),
		members:  newMockMemberRepo(),
		sessions: newMockSessionRepo(),
	}
	repo := &repository.Repository{
		User:              mocks.users,
		Member:            mocks.members,
		AttendanceSession: mocks.sessions,
	}
	return repo, mocks
}

func strPtr(s string) *string { return &s }
