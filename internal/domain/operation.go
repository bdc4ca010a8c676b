package domain

// Operation 表示广播给房间内其他参与者的一次文件内容变更。
// 系统传输的是整个文件内容的快照而不是细粒度增量——这是有意的简化：
// 同一广播往返内的并发编辑按 last-write-wins 处理，时间戳较小的一方会被整体丢弃。
// Operation 只在实时通道中传输，从不作为日志持久化。
type Operation struct {
	FileID    string `json:"fileId"`    // 目标文件 ID
	UserID    uint   `json:"userId"`    // 发起编辑的参与者 ID
	Timestamp int64  `json:"timestamp"` // 毫秒时间戳，LWW 冲突判定依据
	Content   string `json:"content"`   // 文件完整内容快照
}

// Supersedes 判断当前操作是否应覆盖本地记录的时间戳。
// 时间戳相等时接受远端操作，保证两端在平局时收敛到同一份内容。
func (op *Operation) Supersedes(localTimestamp int64) bool {
	return op.Timestamp >= localTimestamp
}
