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
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
)

type finalizeImpl struct {
	*baseImpl
}

// Finalize 结束上传，合并所有分片。
func (c *finalizeImpl) Finalize(ctx context.Context, filename, uploadId string) (json.RawMessage, error) {
	fileId := suitFileId(filename)
	if len(fileId) <= 0 {
		return nil, &FinalizeError{UploadId: uploadId, Cause: errors.New("filename is invalid")}
	}
	if len(uploadId) <= 0 {
		return nil, &FinalizeError{Cause: errors.New("uploadId is invalid")}
	}

	// 生成请求体。
	query := url.Values{}
	query.Set("uploadId", uploadId)
	query.Set("finalize", "")
	header := http.Header{}
	header.Set("Content-Length", "0")
	req := c.genReq(http.MethodPost, fileId, query, header, nil)

	// 发送 HTTP 请求。
	rsp, err := c.sendHttp(ctx, req)
	if err != nil {
		return nil, &FinalizeError{UploadId: uploadId, Cause: err}
	}

	// 读取出响应体。
	rspBody, err := io.ReadAll(rsp.Body)
	closeRsp(rsp)
	if err != nil {
		return nil, &FinalizeError{UploadId: uploadId, Cause: err}
	}

	// 解析响应体。制品元数据由服务端定义，原样透传。
	var artifact json.RawMessage
	if err = decodeEnvelope(rspBody, &artifact); err != nil {
		return nil, &FinalizeError{UploadId: uploadId, Cause: err}
	}

	return artifact, nil
}
