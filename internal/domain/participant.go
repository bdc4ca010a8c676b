package domain

// ParticipantStatus 表示参与者的在线状态。
type ParticipantStatus string

const (
	StatusOnline ParticipantStatus = "online"
	StatusAway   ParticipantStatus = "away"
)

// CursorPosition 表示参与者光标在某个文件中的位置。
type CursorPosition struct {
	Line   int    `json:"line"`
	Column int    `json:"column"`
	FileID string `json:"fileId,omitempty"` // 光标所在文件，可能为空（尚未打开文件）
}

// Participant 表示房间内一个已连接用户的临时在线状态。
// 它只存在于内存和实时通道中，从不持久化；订阅结束即销毁。
type Participant struct {
	ID     uint              `json:"id"`               // 等于认证用户 ID
	Name   string            `json:"name"`             // 展示名称
	Color  string            `json:"color"`            // 由 ID 确定性推导的颜色，跨会话稳定
	Status ParticipantStatus `json:"status"`           // online / away
	Cursor *CursorPosition   `json:"cursor,omitempty"` // 当前光标位置，可能为 nil
}
