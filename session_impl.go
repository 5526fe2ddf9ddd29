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

type sessionImpl struct {
	*baseImpl
}

// CreateSession 开启上传会话。
func (c *sessionImpl) CreateSession(ctx context.Context, filename string, totalSize int64,
	contentType string) (string, error) {

	fileId := suitFileId(filename)
	if len(fileId) <= 0 {
		return "", &SessionError{Cause: errors.New("filename is invalid")}
	}
	if totalSize <= 0 {
		return "", &SessionError{Cause: errors.New("totalSize is invalid")}
	}

	// 生成请求体。
	reqBody, _ := json.Marshal(struct {
		Filename    string `json:"filename"`
		TotalSize   int64  `json:"totalSize"`
		ContentType string `json:"contentType"`
	}{filename, totalSize, contentType})
	query := url.Values{}
	query.Set("uploads", "")
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	req := c.genReq(http.MethodPost, fileId, query, header, reqBody)

	// 发送 HTTP 请求。
	rsp, err := c.sendHttp(ctx, req)
	if err != nil {
		return "", &SessionError{Cause: err}
	}

	// 读取出响应体。
	rspBody, err := io.ReadAll(rsp.Body)
	closeRsp(rsp)
	if err != nil {
		return "", &SessionError{Cause: err}
	}

	// 解析响应体。
	var rspData struct {
		UploadId string `json:"uploadId"`
	}
	if err = decodeEnvelope(rspBody, &rspData); err != nil {
		return "", &SessionError{Cause: err}
	}
	if len(rspData.UploadId) <= 0 {
		return "", &SessionError{Cause: &MalformedResponseError{Body: rspBody}}
	}

	return rspData.UploadId, nil
}

// QuerySession 查询会话状态。
func (c *sessionImpl) QuerySession(ctx context.Context, filename, uploadId string) (*SessionInfo, error) {
	fileId := suitFileId(filename)
	if len(fileId) <= 0 {
		return nil, &SessionError{UploadId: uploadId, Cause: errors.New("filename is invalid")}
	}
	if len(uploadId) <= 0 {
		return nil, &SessionError{Cause: errors.New("uploadId is invalid")}
	}

	// 生成请求体。
	query := url.Values{}
	query.Set("uploadId", uploadId)
	req := c.genReq(http.MethodGet, fileId, query, nil, nil)

	// 发送 HTTP 请求。
	rsp, err := c.sendHttp(ctx, req)
	if err != nil {
		return nil, &SessionError{UploadId: uploadId, Cause: err}
	}

	// 读取出响应体。
	rspBody, err := io.ReadAll(rsp.Body)
	closeRsp(rsp)
	if err != nil {
		return nil, &SessionError{UploadId: uploadId, Cause: err}
	}

	// 解析响应体。
	var rspData struct {
		UploadId string `json:"uploadId"`
		Offset   int64  `json:"offset"`
	}
	if err = decodeEnvelope(rspBody, &rspData); err != nil {
		return nil, &SessionError{UploadId: uploadId, Cause: err}
	}

	return &SessionInfo{UploadId: rspData.UploadId, Offset: rspData.Offset}, nil
}

// AbortSession 丢弃会话及其已上传的分片。
func (c *sessionImpl) AbortSession(ctx context.Context, filename, uploadId string) error {
	fileId := suitFileId(filename)
	if len(fileId) <= 0 {
		return errors.New("filename is invalid")
	}
	if len(uploadId) <= 0 {
		return errors.New("uploadId is invalid")
	}

	// 发送 HTTP 请求。
	query := url.Values{}
	query.Set("uploadId", uploadId)
	req := c.genReq(http.MethodDelete, fileId, query, nil, nil)

	rsp, err := c.sendHttp(ctx, req)
	if err != nil {
		return err
	}
	closeRsp(rsp)

	return nil
}
