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
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unsafe"
)

var (
	requestPool = sync.Pool{New: func() any {
		return &http.Request{
			ProtoMajor: 1,
			ProtoMinor: 1,
		}
	}}
	bytesPool = sync.Pool{New: func() any { return make([]byte, getChunkSize()) }}
)

// 响应体统一信封。
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

// 获取请求体。
func getRequest() *http.Request {
	return requestPool.Get().(*http.Request)
}

// 回收请求体。
func rollbackRequest(req *http.Request) {
	if req != nil {
		req.Method = ""
		req.URL = nil
		req.Proto = ""
		req.Header = nil
		req.Body = nil
		req.GetBody = nil
		req.TransferEncoding = nil
		req.Close = false
		req.Form = nil
		req.PostForm = nil
		req.MultipartForm = nil
		req.Trailer = nil
		req.RemoteAddr = ""
		req.RequestURI = ""
		req.TLS = nil
		req.Cancel = nil
		req.Response = nil
		req.Pattern = ""
		requestPool.Put(req)
	}
}

// 获取分片缓冲区。长度与默认分片大小一致的缓冲区从池中获取。
func makeBytes(n int64) []byte {
	if n == getChunkSize() {
		return bytesPool.Get().([]byte)[:n]
	}
	return make([]byte, n)
}

// 回收分片缓冲区。
func rollbackBytes(data []byte) {
	if int64(cap(data)) != getChunkSize() {
		data = nil
		return
	}
	if cap(data) > len(data) {
		data = unsafe.Slice(&data[0], cap(data))
	}
	bytesPool.Put(data)
}

// 获取分片大小。
func getChunkSize() int64 {
	chunkSize := ChunkSize
	if chunkSize < 64*1024 {
		return 5 * 1024 * 1024 // 一个分片最小 64KiB，无效值回落到默认 5MiB。
	} else if chunkSize > 5*1024*1024*1024 {
		return 5 * 1024 * 1024 * 1024 // 一个分片最大 5GiB。
	}
	return int64(chunkSize)
}

// 计算文件分成多少个分片。
func countChunks(totalSize, chunkSize int64) int {
	if totalSize <= 0 || chunkSize <= 0 {
		return 0
	}
	return int((totalSize + chunkSize - 1) / chunkSize)
}

// 计算第 i 个分片（从 0 开始）的字节区间 [start, end)。
func chunkRange(i int, chunkSize, totalSize int64) (start, end int64) {
	start = int64(i) * chunkSize
	end = start + chunkSize
	if end > totalSize {
		end = totalSize
	}
	return
}

// 解析响应体信封并取出 data 字段。out 为 nil 时只校验信封。
func decodeEnvelope(rspBody []byte, out any) error {
	var e envelope
	if err := json.Unmarshal(rspBody, &e); err != nil {
		return &MalformedResponseError{Body: rspBody, Cause: err}
	}
	if !e.Success {
		if len(e.Error) > 0 {
			return fmt.Errorf("server error: %s", e.Error)
		}
		return &MalformedResponseError{Body: rspBody}
	}
	if out == nil {
		return nil
	}
	if len(e.Data) <= 0 {
		return &MalformedResponseError{Body: rspBody}
	}
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = e.Data
		return nil
	}
	if err := json.Unmarshal(e.Data, out); err != nil {
		return &MalformedResponseError{Body: rspBody, Cause: err}
	}
	return nil
}

// 读取响应体并关闭。
func readAndClose(rsp *http.Response) []byte {
	if rsp != nil && rsp.Body != nil {
		bs, err := io.ReadAll(rsp.Body)
		printError(err)
		closeRsp(rsp)
		return bs
	}
	return nil
}

// 关闭流。
func closeIO(closer io.Closer) {
	if closer != nil {
		printError(closer.Close())
	}
}

// 关闭 HTTP 响应对象的响应体。
func closeRsp(r *http.Response) {
	if r != nil && r.Body != nil {
		printError(r.Body.Close())
	}
}

// 向标准错误输出流打印错误信息。
func printError(err error) {
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "chunk-upload-api: %v\n", err)
	}
}

// 纠正文件 ID。
func suitFileId(fileId string) string {
	return strings.TrimLeft(strings.TrimLeft(filepath.Clean(strings.Trim(fileId, "/")), "."), "/")
}
