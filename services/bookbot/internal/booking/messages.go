package booking

import (
	"fmt"
	"strings"

	"github.com/twclinics/groupbook/services/bookbot/internal/model"
	"github.com/twclinics/groupbook/services/bookbot/internal/storage"
)

// DefaultServices is the treatment menu offered when the clinic has not
// customized its catalog.
var DefaultServices = []string{
	"肉毒",
	"玻尿酸",
	"皮秒雷射",
	"音波拉提",
	"淨膚雷射",
	"杏仁酸換膚",
}

// pendingWarnThreshold triggers the backlog warning appended to the
// pending list in multiple-booking sessions.
const pendingWarnThreshold = 5

func serviceMenuText(services []string) string {
	var b strings.Builder
	b.WriteString("請選擇療程項目：\n")
	for i, s := range services {
		fmt.Fprintf(&b, "%d. %s\n", i+1, s)
	}
	return strings.TrimRight(b.String(), "\n")
}

func dateMenuText(dates []string) string {
	var b strings.Builder
	b.WriteString("請選擇預約日期：\n")
	for _, d := range dates {
		fmt.Fprintf(&b, "・%s\n", d)
	}
	return strings.TrimRight(b.String(), "\n")
}

func timeMenuText(date string, slots []string) string {
	if len(slots) == 0 {
		return fmt.Sprintf("%s 當日公休，請選擇其他日期。", date)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s 可預約時段：\n", date)
	for _, s := range slots {
		fmt.Fprintf(&b, "・%s\n", s)
	}
	return strings.TrimRight(b.String(), "\n")
}

func namePromptText(d model.Draft) string {
	return fmt.Sprintf("已選擇 %s／%s %s\n請輸入預約人姓名：", d.Service, d.Date, d.Time)
}

func noteChoiceText() string {
	return "是否需要備註？（回覆「需要」或「略過」）"
}

func notePromptText() string {
	return "請輸入備註內容："
}

func confirmationText(d model.Draft, id int64) string {
	var b strings.Builder
	b.WriteString("預約已送出，等待診所確認 ✅\n")
	fmt.Fprintf(&b, "編號：%d\n姓名：%s\n療程：%s\n日期：%s\n時段：%s", id, d.Name, d.Service, d.Date, d.Time)
	if d.Note != nil && *d.Note != "" {
		fmt.Fprintf(&b, "\n備註：%s", *d.Note)
	}
	return b.String()
}

func pendingListText(appts []model.Appointment) string {
	if len(appts) == 0 {
		return "目前沒有待確認的預約。"
	}
	var b strings.Builder
	b.WriteString("待確認預約：\n")
	for _, a := range appts {
		fmt.Fprintf(&b, "#%d %s %s %s（%s）\n", a.ID, a.Date, a.TimeSlot, a.CustomerName, a.Service)
	}
	if len(appts) >= pendingWarnThreshold {
		fmt.Fprintf(&b, "⚠️ 已累積 %d 筆待確認預約，請診所儘速處理。\n", len(appts))
	}
	return strings.TrimRight(b.String(), "\n")
}

func continuePromptText() string {
	return "預約完成！要繼續預約下一筆嗎？（回覆「繼續」或「查看清單」）"
}

func conflictText(c storage.Conflict) string {
	if c.CustomerName != "" {
		return fmt.Sprintf("這個時段已被 %s（%s）預約，請重新選擇時段。", c.CustomerName, c.Service)
	}
	return "這個時段剛被預約走了，請重新選擇時段。"
}

func invalidDateText() string {
	return "此日期無法預約（已過期、公休或超出可預約範圍），請重新選擇。"
}

func invalidSlotText() string {
	return "此時段不在營業時間內，請重新選擇。"
}

func invalidServiceText() string {
	return "沒有這個療程項目，請從選單中選擇。"
}

func staffConfirmedText(a model.Appointment) string {
	return fmt.Sprintf("您的預約已確認 🎉\n編號：%d\n姓名：%s\n療程：%s\n日期：%s\n時段：%s",
		a.ID, a.CustomerName, a.Service, a.Date, a.TimeSlot)
}

func statusLabel(s model.Status) string {
	switch s {
	case model.StatusPending:
		return "待確認"
	case model.StatusConfirmed:
		return "已確認"
	case model.StatusCancelled:
		return "已取消"
	case model.StatusCompleted:
		return "已完成"
	}
	return string(s)
}

func myAppointmentsText(appts []model.Appointment) string {
	if len(appts) == 0 {
		return "您目前沒有即將到來的預約。"
	}
	var b strings.Builder
	b.WriteString("您的預約：\n")
	for _, a := range appts {
		fmt.Fprintf(&b, "#%d %s %s %s（%s）%s\n", a.ID, a.Date, a.TimeSlot, a.CustomerName, a.Service, statusLabel(a.Status))
	}
	return strings.TrimRight(b.String(), "\n")
}
