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

import (
	"context"
)

// SessionInfo 会话信息。
type SessionInfo struct {
	// UploadId 会话标识。
	UploadId string
	// Offset 服务端已确认收到的累计字节数。
	Offset int64
}

type SessionNegotiator interface {
	// CreateSession 开启上传会话，返回会话标识。失败不重试。
	CreateSession(ctx context.Context, filename string, totalSize int64, contentType string) (string, error)

	// QuerySession 查询会话状态。用于断点续传前与服务端核对偏移。
	QuerySession(ctx context.Context, filename, uploadId string) (*SessionInfo, error)

	// AbortSession 丢弃会话及其已上传的分片。
	AbortSession(ctx context.Context, filename, uploadId string) error
}
