package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"
	_ "time/tzdata" // 容器镜像可能不含时区数据库

	ics "github.com/arran4/golang-ical"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"house-of-david/backend/config"
	"house-of-david/backend/internal/model"
	"house-of-david/backend/internal/repository"
)

var ErrExportGenerateFail = errors.New("生成导出文件失败")

const (
	rosterSheet = "签到名单"
	infoSheet   = "会话信息"
	timeLayout  = "2006-01-02 15:04:05"
)

// ExportService 导出业务接口
type ExportService interface {
	// ExportSession 导出会话签到名单为 Excel
	ExportSession(ctx context.Context, sessionID string) (*bytes.Buffer, string, error)
	// ExportCalendar 导出全部会话为 iCalendar
	ExportCalendar(ctx context.Context) ([]byte, error)
}

type exportService struct {
	repo   *repository.Repository
	loc    *time.Location
	logger *zap.Logger
}

// NewExportService 创建 ExportService 实例
func NewExportService(cfg *config.AttendanceConfig, repo *repository.Repository, logger *zap.Logger) ExportService {
	loc, err := time.LoadLocation(cfg.ExportTimezone)
	if err != nil {
		loc = time.UTC
	}
	return &exportService{repo: repo, loc: loc, logger: logger}
}

// ────────────────────── Excel ──────────────────────

func (s *exportService) ExportSession(ctx context.Context, sessionID string) (*bytes.Buffer, string, error) {
	session, err := s.repo.AttendanceSession.GetDetail(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", ErrSessionNotFound
		}
		s.logger.Error("查询签到会话失败", zap.String("session_id", sessionID), zap.Error(err))
		return nil, "", err
	}

	f := excelize.NewFile()
	defer f.Close()

	idx, _ := f.NewSheet(rosterSheet)
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	f.SetColWidth(rosterSheet, "A", "A", 8)
	f.SetColWidth(rosterSheet, "B", "B", 22)
	f.SetColWidth(rosterSheet, "C", "C", 18)
	f.SetColWidth(rosterSheet, "D", "D", 22)
	f.SetColWidth(rosterSheet, "E", "E", 10)
	f.SetColWidth(rosterSheet, "F", "F", 18)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})

	// 标题行
	f.SetCellValue(rosterSheet, "A1", fmt.Sprintf("%s 签到名单", session.SessionName))
	f.MergeCell(rosterSheet, "A1", "F1")
	f.SetCellStyle(rosterSheet, "A1", "A1", headerStyle)

	// 表头
	headers := []string{"序号", "姓名", "手机号", "签到时间", "已注册", "IP"}
	for i, h := range headers {
		f.SetCellValue(rosterSheet, cell(colName(i), 2), h)
	}
	f.SetCellStyle(rosterSheet, "A2", "F2", headerStyle)

	// 数据行（按签到顺序）
	for i, sig := range session.Signatures {
		row := i + 3
		f.SetCellValue(rosterSheet, cell("A", row), i+1)
		f.SetCellValue(rosterSheet, cell("B", row), sig.FullName)
		f.SetCellValue(rosterSheet, cell("C", row), sig.PhoneNumber)
		f.SetCellValue(rosterSheet, cell("D", row), s.formatTime(sig.SignedAt))
		f.SetCellValue(rosterSheet, cell("E", row), yesNo(sig.IsRegistered))
		f.SetCellValue(rosterSheet, cell("F", row), sig.IPAddress)
	}

	// 会话信息
	f.NewSheet(infoSheet)
	f.SetColWidth(infoSheet, "A", "A", 14)
	f.SetColWidth(infoSheet, "B", "B", 40)
	info := [][2]string{
		{"会话名称", session.SessionName},
		{"说明", session.Description},
		{"状态", string(session.Status)},
		{"开启时间", s.formatTime(session.OpenedAt)},
		{"关闭时间", s.formatOptionalTime(session.ClosedAt)},
		{"创建人", personName(session.Creator)},
		{"关闭人", personName(session.Closer)},
		{"签到人数", fmt.Sprintf("%d", len(session.Signatures))},
	}
	for i, kv := range info {
		f.SetCellValue(infoSheet, cell("A", i+1), kv[0])
		f.SetCellValue(infoSheet, cell("B", i+1), kv[1])
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		s.logger.Error("写入 Excel 失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}

	filename := fmt.Sprintf("签到名单_%s_%s.xlsx",
		session.SessionName, session.OpenedAt.In(s.loc).Format("20060102"))
	return buf, filename, nil
}

// ────────────────────── iCalendar ──────────────────────

func (s *exportService) ExportCalendar(ctx context.Context) ([]byte, error) {
	sessions, err := s.repo.AttendanceSession.List(ctx)
	if err != nil {
		s.logger.Error("查询签到会话列表失败", zap.Error(err))
		return nil, err
	}

	now := time.Now().UTC()
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//House of David//Attendance//ZH")
	cal.SetXWRCalName("签到会话")

	for i := range sessions {
		session := &sessions[i]
		event := cal.AddEvent(session.SessionID + "@house-of-david")
		event.SetDtStampTime(now)
		event.SetCreatedTime(session.CreatedAt)
		event.SetModifiedAt(session.UpdatedAt)
		event.SetStartAt(session.OpenedAt)
		event.SetSummary(session.SessionName)
		event.SetDescription(fmt.Sprintf("%s\n签到人数：%d", session.Description, len(session.Signatures)))

		if session.ClosedAt != nil {
			event.SetEndAt(*session.ClosedAt)
			event.SetProperty(ics.ComponentPropertyStatus, "CONFIRMED")
		} else {
			// 进行中的会话以当前时间为结束
			event.SetEndAt(now)
			event.SetProperty(ics.ComponentPropertyStatus, "TENTATIVE")
		}
	}

	return []byte(cal.Serialize()), nil
}

// ── 辅助函数 ──

func (s *exportService) formatTime(t time.Time) string {
	return t.In(s.loc).Format(timeLayout)
}

func (s *exportService) formatOptionalTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return s.formatTime(*t)
}

func personName(u *model.User) string {
	if u == nil {
		return "-"
	}
	return u.FullName()
}

func yesNo(b bool) string {
	if b {
		return "是"
	}
	return "否"
}

func colName(idx int) string {
	name, _ := excelize.ColumnNumberToName(idx + 1)
	return name
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
