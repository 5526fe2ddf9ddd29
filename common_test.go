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

package upload_test

import (
	"bytes"
	"crypto/hmac"
	crand "crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	upload "gitee.com/ivfzhou/chunk-upload-api"
)

const (
	host      = "upload.example.com"
	appKey    = "app_key"
	appSecret = "app_secret"
)

type mockTransport struct {
	fn func(*http.Request) (*http.Response, error)
}

func (m *mockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return m.fn(req)
}

func MockHttpClient(fn func(*http.Request) (*http.Response, error)) *http.Client {
	return &http.Client{
		Transport: &mockTransport{
			fn: fn,
		},
	}
}

func MakeBytesWithSize(n int) []byte {
	data := make([]byte, n)
	m, err := crand.Read(data)
	if err != nil || m != len(data) {
		panic("rand.Read fail")
	}
	return data
}

// CheckAuthorization 按照客户端的算法重算签名并比对。
func CheckAuthorization(auth, path, method string, query url.Values) bool {
	fields := make(map[string]string)
	for _, v := range strings.Split(auth, "&") {
		k, m, ok := strings.Cut(v, "=")
		if !ok {
			return false
		}
		fields[k] = m
	}
	if fields["q-sign-algorithm"] != "sha256" || fields["q-ak"] != appKey {
		return false
	}
	keyTime := fields["q-key-time"]
	if len(keyTime) <= 0 || fields["q-sign-time"] != keyTime {
		return false
	}

	keyList := make([]string, 0, len(query))
	paramList := make([]string, 0, len(query))
	tmp := make(map[string][]string, len(query))
	for k, v := range query {
		n := strings.ToLower(url.QueryEscape(k))
		tmp[n] = v
		keyList = append(keyList, n)
	}
	sort.Strings(keyList)
	for _, v := range keyList {
		for _, m := range tmp[v] {
			paramList = append(paramList, fmt.Sprintf("%s=%s", v, url.QueryEscape(m)))
		}
	}
	if fields["q-url-param-list"] != strings.Join(keyList, ";") {
		return false
	}

	hash := hmac.New(sha256.New, []byte(appSecret))
	hash.Write([]byte(keyTime))
	signKey := fmt.Sprintf("%x", hash.Sum(nil))

	httpString := fmt.Sprintf("%s\n%s\n%s\n", strings.ToLower(method), path, strings.Join(paramList, "&"))
	sum := sha256.Sum256([]byte(httpString))
	stringToSign := fmt.Sprintf("sha256\n%s\n%x\n", keyTime, sum)

	hash = hmac.New(sha256.New, []byte(signKey))
	hash.Write([]byte(stringToSign))
	signature := fmt.Sprintf("%x", hash.Sum(nil))

	return fields["q-signature"] == signature
}

// fakeServer 按照服务端协议回应三个上传端点，记录收到的请求以便断言。
type fakeServer struct {
	t        *testing.T
	uploadId string

	lock          sync.Mutex
	received      bytes.Buffer
	offset        int64
	createCalls   int
	queryCalls    int
	finalizeCalls int
	abortCalls    int
	chunkOffsets  []int64 // 分片请求到达顺序的偏移。
	chunkSizes    []int   // 成功入库的分片大小，按顺序。
	requestIds    []string
	failTimes     map[int64]int // 偏移对应的 500 失败次数。
	malformTimes  map[int64]int // 偏移对应的乱响应次数。
	failCreate    int           // 会话创建的 500 失败次数。
	failFinalize  int           // 结束上传的 500 失败次数。
	artifact      string
	onChunk       func() // 每个分片请求到达时回调。
}

func newFakeServer(t *testing.T, uploadId string) *fakeServer {
	return &fakeServer{
		t:            t,
		uploadId:     uploadId,
		failTimes:    make(map[int64]int),
		malformTimes: make(map[int64]int),
		artifact:     `{"fileId":"artifact_1","size":0}`,
	}
}

func (s *fakeServer) client() *http.Client {
	return MockHttpClient(s.handle)
}

func (s *fakeServer) handle(req *http.Request) (*http.Response, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if req.Host != host {
		s.t.Errorf("unexpected host: want %v, got %v", host, req.Host)
	}
	auth := req.Header.Get("Authorization")
	if !CheckAuthorization(auth, req.URL.Path, req.Method, req.URL.Query()) {
		s.t.Errorf("unexpected auth: got %v", auth)
	}
	requestId := req.Header.Get("X-Request-Id")
	if len(requestId) <= 0 {
		s.t.Errorf("unexpected request id: got %v", requestId)
	}
	s.requestIds = append(s.requestIds, requestId)

	query := req.URL.Query()
	switch {
	case req.Method == http.MethodPost && query.Has("uploads"):
		s.createCalls++
		if s.failCreate > 0 {
			s.failCreate--
			return jsonRsp(http.StatusInternalServerError, `{"success":false,"error":"boom"}`), nil
		}
		var reqData struct {
			Filename    string `json:"filename"`
			TotalSize   int64  `json:"totalSize"`
			ContentType string `json:"contentType"`
		}
		bs, err := io.ReadAll(req.Body)
		if err != nil {
			s.t.Errorf("unexpected error: want nil, got %v", err)
		}
		if err = json.Unmarshal(bs, &reqData); err != nil {
			s.t.Errorf("unexpected error: want nil, got %v", err)
		}
		if reqData.TotalSize <= 0 {
			s.t.Errorf("unexpected totalSize: got %v", reqData.TotalSize)
		}
		return jsonRsp(http.StatusOK, fmt.Sprintf(`{"success":true,"data":{"uploadId":%q}}`, s.uploadId)), nil

	case req.Method == http.MethodPut:
		if s.onChunk != nil {
			s.onChunk()
		}
		if v := query.Get("uploadId"); v != s.uploadId {
			s.t.Errorf("unexpected upload id: want %v, got %v", s.uploadId, v)
		}
		offset, err := strconv.ParseInt(query.Get("offset"), 10, 64)
		if err != nil {
			s.t.Errorf("unexpected offset: got %v", query.Get("offset"))
		}
		s.chunkOffsets = append(s.chunkOffsets, offset)
		if n := s.failTimes[offset]; n > 0 {
			s.failTimes[offset] = n - 1
			return jsonRsp(http.StatusInternalServerError, `{"success":false,"error":"boom"}`), nil
		}
		if n := s.malformTimes[offset]; n > 0 {
			s.malformTimes[offset] = n - 1
			return jsonRsp(http.StatusOK, `{`), nil
		}
		if offset != s.offset {
			return jsonRsp(http.StatusOK,
				fmt.Sprintf(`{"success":false,"error":"offset not match, want %d"}`, s.offset)), nil
		}
		bs, err := io.ReadAll(req.Body)
		if err != nil {
			s.t.Errorf("unexpected error: want nil, got %v", err)
		}
		if int64(len(bs)) != req.ContentLength {
			s.t.Errorf("unexpected content length: want %v, got %v", req.ContentLength, len(bs))
		}
		s.received.Write(bs)
		s.offset += int64(len(bs))
		s.chunkSizes = append(s.chunkSizes, len(bs))
		return jsonRsp(http.StatusOK, fmt.Sprintf(`{"success":true,"data":{"offset":%d}}`, s.offset)), nil

	case req.Method == http.MethodPost && query.Has("finalize"):
		s.finalizeCalls++
		if v := query.Get("uploadId"); v != s.uploadId {
			s.t.Errorf("unexpected upload id: want %v, got %v", s.uploadId, v)
		}
		if s.failFinalize > 0 {
			s.failFinalize--
			return jsonRsp(http.StatusInternalServerError, `{"success":false,"error":"boom"}`), nil
		}
		return jsonRsp(http.StatusOK, fmt.Sprintf(`{"success":true,"data":%s}`, s.artifact)), nil

	case req.Method == http.MethodGet:
		s.queryCalls++
		if v := query.Get("uploadId"); v != s.uploadId {
			return jsonRsp(http.StatusNotFound, ""), nil
		}
		return jsonRsp(http.StatusOK,
			fmt.Sprintf(`{"success":true,"data":{"uploadId":%q,"offset":%d}}`, s.uploadId, s.offset)), nil

	case req.Method == http.MethodDelete:
		s.abortCalls++
		return jsonRsp(http.StatusOK, `{"success":true}`), nil

	case req.Method == http.MethodHead:
		return jsonRsp(http.StatusOK, ""), nil
	}

	s.t.Errorf("unexpected request: %v %v", req.Method, req.URL)
	return jsonRsp(http.StatusBadRequest, `{"success":false,"error":"bad request"}`), nil
}

// 预置一个已存在的会话，模拟跨进程续传前服务端的状态。
func (s *fakeServer) preload(data []byte) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.received.Write(data)
	s.offset = int64(len(data))
}

func (s *fakeServer) receivedBytes() []byte {
	s.lock.Lock()
	defer s.lock.Unlock()
	return bytes.Clone(s.received.Bytes())
}

func (s *fakeServer) chunkCalls() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.chunkOffsets)
}

func (s *fakeServer) stats() (createCalls, queryCalls, finalizeCalls, abortCalls int) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.createCalls, s.queryCalls, s.finalizeCalls, s.abortCalls
}

func (s *fakeServer) offsets() []int64 {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]int64(nil), s.chunkOffsets...)
}

func (s *fakeServer) sizes() []int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]int(nil), s.chunkSizes...)
}

func jsonRsp(statusCode int, body string) *http.Response {
	return &http.Response{
		StatusCode:    statusCode,
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: int64(len(body)),
	}
}

func newTestClient(s *fakeServer) upload.Api {
	return upload.NewClient(host, appKey, appSecret, upload.WithHttpClient(s.client()))
}
