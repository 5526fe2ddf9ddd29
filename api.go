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
	"time"
)

var (
	// ChunkSize 上传时每个分片的大小。不可在文件上传期间修改值。
	ChunkSize = 5 * 1024 * 1024
	// MaxRetries 一个分片上传失败后，追加重试的次数上限。
	MaxRetries = 3
	// RetryDelay 分片重试的基础延迟时长，第 k 次重试前等待 RetryDelay*2^(k-1)。
	RetryDelay = time.Second
	// NumRoutines 批量上传多个文件时，并发运行协程的数量。单个文件内部的分片始终串行上传。
	NumRoutines = 3
	// AuthExpirationTime 每一个 HTTP 请求的凭证时效。
	AuthExpirationTime = 10 * time.Minute
)

type Api interface {
	Baser
	SessionNegotiator
	ChunkTransferor
	Finalizer
}

type impl struct {
	*baseImpl
	SessionNegotiator
	ChunkTransferor
	Finalizer
}

// NewClient 创建分片上传服务端的操作客户端。
func NewClient(host, appKey, secretKey string, opts ...option) Api {
	c := &baseImpl{
		appKey:    appKey,
		secretKey: secretKey,
		host:      host,
	}

	// 设置参数。
	for _, v := range opts {
		if v == nil {
			continue
		}
		v(&c.options)
	}

	negotiator := &sessionImpl{c}
	transferor := &chunkImpl{c}
	finalizer := &finalizeImpl{c}

	return &impl{c, negotiator, transferor, finalizer}
}
