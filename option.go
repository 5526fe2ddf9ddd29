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
	"encoding/json"
	"net/http"
	"time"
)

type options struct {
	client     *http.Client
	tls        bool
	maxRetries int
	retryDelay time.Duration
}

type option func(*options)

// WithHttpClient 使用自定义 HTTP 客户端实现。默认使用 http.DefaultClient。
func WithHttpClient(client *http.Client) option {
	return func(o *options) {
		o.client = client
	}
}

// WithHttps 使用 https 协议。
func WithHttps() option {
	return func(o *options) {
		o.tls = true
	}
}

// WithMaxRetries 覆盖分片上传失败后的追加重试次数上限。默认使用 MaxRetries。
func WithMaxRetries(n int) option {
	return func(o *options) {
		if n >= 0 {
			o.maxRetries = n + 1 // 内部以总尝试次数保存，0 表示未设置。
		}
	}
}

// WithRetryDelay 覆盖分片重试的基础延迟时长。默认使用 RetryDelay。
func WithRetryDelay(d time.Duration) option {
	return func(o *options) {
		if d > 0 {
			o.retryDelay = d
		}
	}
}

type uploadOption func(*Uploader)

// WithChunkSize 覆盖这一次上传的分片大小。默认使用 ChunkSize。
func WithChunkSize(n int64) uploadOption {
	return func(u *Uploader) {
		if n > 0 {
			u.chunkSize = n
		}
	}
}

// WithContentType 设置文件内容类型。
func WithContentType(contentType string) uploadOption {
	return func(u *Uploader) {
		u.contentType = contentType
	}
}

// WithOnProgress 每个分片被服务端确认后投递一次进度快照。最后一个分片的快照在进入
// Completed 后投递，百分比只在 Completed 达到 100。
func WithOnProgress(fn func(Progress)) uploadOption {
	return func(u *Uploader) {
		u.onProgress = fn
	}
}

// WithOnChunkComplete 每个分片被服务端确认后投递已完成的分片数和分片总数。
func WithOnChunkComplete(fn func(done, total int)) uploadOption {
	return func(u *Uploader) {
		u.onChunkComplete = fn
	}
}

// WithOnComplete 上传成功后投递服务端定义的制品元数据。每次 Start 至多触发一次，
// 与 OnError 恰好触发其一。
func WithOnComplete(fn func(artifact json.RawMessage)) uploadOption {
	return func(u *Uploader) {
		u.onComplete = fn
	}
}

// WithOnError 上传失败或被取消后投递终态错误。每次 Start 至多触发一次。
func WithOnError(fn func(error)) uploadOption {
	return func(u *Uploader) {
		u.onError = fn
	}
}
