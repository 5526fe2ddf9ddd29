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
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/cenkalti/backoff/v4"
)

type chunkImpl struct {
	*baseImpl
}

// TransferChunk 上传一个分片，返回服务端确认的累计字节偏移。
func (c *chunkImpl) TransferChunk(ctx context.Context, filename, uploadId string, offset int64,
	chunk []byte) (int64, error) {

	fileId := suitFileId(filename)
	if len(fileId) <= 0 {
		return 0, errors.New("filename is invalid")
	}
	if len(uploadId) <= 0 {
		return 0, errors.New("uploadId is invalid")
	}
	if len(chunk) <= 0 {
		return 0, errors.New("chunk is empty")
	}

	// 重试调度：指数退避，倍数 2，无抖动，按尝试次数封顶。
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.baseRetryDelay()
	bo.RandomizationFactor = 0
	bo.Multiplier = 2
	bo.MaxInterval = c.baseRetryDelay() * 16
	bo.MaxElapsedTime = 0
	bo.Reset()

	attempts := 0
	var lastErr error
	var newOffset int64
	operation := func() error {
		// 每次尝试前检查取消，包括第一次。
		if ctx.Err() != nil {
			return backoff.Permanent(cancelCause(ctx))
		}
		attempts++
		n, err := c.transferOnce(ctx, fileId, uploadId, offset, chunk)
		if err != nil {
			lastErr = err
			// 传输中被取消就立即退出重试循环。
			if ctx.Err() != nil {
				return backoff.Permanent(cancelCause(ctx))
			}
			return err
		}
		newOffset = n
		return nil
	}

	retries := uint64(0)
	if n := c.totalAttempts(); n > 1 {
		retries = uint64(n - 1)
	}
	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, retries), ctx))
	if err != nil {
		if ctx.Err() != nil {
			return 0, cancelCause(ctx)
		}
		return 0, &ChunkTransferError{Offset: offset, Attempts: attempts, Cause: lastErr}
	}

	return newOffset, nil
}

// 单次上传分片。
func (c *chunkImpl) transferOnce(ctx context.Context, fileId, uploadId string, offset int64,
	chunk []byte) (int64, error) {

	// 生成请求体。
	query := url.Values{}
	query.Set("uploadId", uploadId)
	query.Set("offset", strconv.FormatInt(offset, 10))
	header := http.Header{}
	header.Set("Content-Type", "application/octet-stream")
	req := c.genReq(http.MethodPut, fileId, query, header, chunk)

	// 发送 HTTP 请求。
	rsp, err := c.sendHttp(ctx, req)
	if err != nil {
		return 0, err
	}

	// 读取出响应体。
	rspBody, err := io.ReadAll(rsp.Body)
	closeRsp(rsp)
	if err != nil {
		return 0, err
	}

	// 解析响应体。
	var rspData struct {
		Offset int64 `json:"offset"`
	}
	if err = decodeEnvelope(rspBody, &rspData); err != nil {
		return 0, err
	}

	return rspData.Offset, nil
}

// 取出上下文的取消原因。
func cancelCause(ctx context.Context) error {
	if cause := context.Cause(ctx); cause != nil {
		return cause
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return ErrCancelled
}
