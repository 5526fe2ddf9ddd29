/*
 * Copyright (c) 2025 ivfzhou
 * chunk-upload-api is licensed under Mulan PSL v2.
 * You can use this software according to the terms and conditions of the Mulan PSL v2.
 * You may obtain a copy of Mulan PSL v2 at:
 *          http://license.coscl.org.cn/MulanPSL2
 * THIS SOFTWARE IS PROVIDED ON AN "AS IS" BASIS, WITHOUT WARRANTIES OF ANY KIND,
 * EITHER EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO NON-INFRINGEMENT,
 * MERCHANTABILITY OR FIT FOR A PARTICULAR PURPOSE.
 * See the Mulan PSL v2 for more details.
 */

package upload

// Status 上传状态机的状态。
type Status int32

const (
	// StatusCreated 控制器已创建，尚未启动。
	StatusCreated Status = iota
	// StatusNegotiating 正在协商上传会话。
	StatusNegotiating
	// StatusTransferring 正在串行传输分片。
	StatusTransferring
	// StatusPaused 已暂停，等待恢复或取消。
	StatusPaused
	// StatusFinalizing 所有分片已确认，正在结束上传。
	StatusFinalizing
	// StatusCompleted 上传成功，终态。
	StatusCompleted
	// StatusFailed 上传失败，终态。
	StatusFailed
	// StatusCancelled 上传被取消，终态。
	StatusCancelled
)

// Terminal 是否为终态。进入终态后状态不再变化。
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusNegotiating:
		return "negotiating"
	case StatusTransferring:
		return "transferring"
	case StatusPaused:
		return "paused"
	case StatusFinalizing:
		return "finalizing"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	}
	return "unknown"
}

// State 可持久化的上传状态。序列化后保存，可跨进程重启恢复断点续传。
type State struct {
	// UploadId 会话标识。
	UploadId string `json:"uploadId"`
	// UploadedBytes 服务端已确认收到的累计字节数。
	UploadedBytes int64 `json:"uploadedBytes"`
	// CurrentChunk 下一个待传输的分片序号（从 0 开始）。
	CurrentChunk int `json:"currentChunk"`
	// Filename 文件名。
	Filename string `json:"filename"`
	// TotalSize 文件总字节数。
	TotalSize int64 `json:"totalSize"`
}
