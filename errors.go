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
	"errors"
	"fmt"
)

var (
	// ErrCancelled 上传被调用方主动取消。不是传输故障。
	ErrCancelled = errors.New("upload cancelled")
	// ErrNotExists 会话或文件不存在。
	ErrNotExists = errors.New("not found")
)

// SessionError 会话协商失败。不重试，直接终止上传。
type SessionError struct {
	UploadId string
	Cause    error
}

func (e *SessionError) Error() string {
	if len(e.UploadId) > 0 {
		return fmt.Sprintf("upload session %s fail: %v", e.UploadId, e.Cause)
	}
	return fmt.Sprintf("create upload session fail: %v", e.Cause)
}

func (e *SessionError) Unwrap() error { return e.Cause }

// ChunkTransferError 一个分片在用尽所有尝试后仍然失败。Cause 为最后一次失败的原因。
type ChunkTransferError struct {
	Offset   int64
	Attempts int
	Cause    error
}

func (e *ChunkTransferError) Error() string {
	return fmt.Sprintf("transfer chunk at offset %d fail after %d attempts: %v", e.Offset, e.Attempts, e.Cause)
}

func (e *ChunkTransferError) Unwrap() error { return e.Cause }

// FinalizeError 结束上传失败。不重试，直接终止上传。
type FinalizeError struct {
	UploadId string
	Cause    error
}

func (e *FinalizeError) Error() string {
	return fmt.Sprintf("finalize upload %s fail: %v", e.UploadId, e.Cause)
}

func (e *FinalizeError) Unwrap() error { return e.Cause }

// MalformedResponseError 响应体不是合法的信封结构。按传输故障处理，参与分片重试。
type MalformedResponseError struct {
	Body  []byte
	Cause error
}

func (e *MalformedResponseError) Error() string {
	body := e.Body
	if len(body) > 256 {
		body = body[:256]
	}
	if e.Cause != nil {
		return fmt.Sprintf("malformed response body: %v: %s", e.Cause, body)
	}
	return fmt.Sprintf("malformed response body: %s", body)
}

func (e *MalformedResponseError) Unwrap() error { return e.Cause }
