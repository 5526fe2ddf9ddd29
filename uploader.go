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
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	gu "gitee.com/ivfzhou/goroutine-util"
)

// Uploader 单个文件的上传控制器。驱动协商会话、串行传输分片、结束上传的流程，
// 持有暂停、恢复、取消状态。一个实例只执行一次上传，实例之间不共享任何状态。
//
// 分片严格串行传输，同一时刻至多一个分片在途，内存中至多驻留一个分片的字节。
type Uploader struct {
	api         Api
	file        io.ReaderAt
	closer      io.Closer
	filename    string
	contentType string
	totalSize   int64
	chunkSize   int64
	totalChunks int

	onProgress      func(Progress)
	onChunkComplete func(done, total int)
	onComplete      func(json.RawMessage)
	onError         func(error)

	lock          sync.Mutex
	status        Status
	uploadId      string
	uploadedBytes int64
	currentChunk  int
	started       bool
	resumeCh      chan struct{} // 暂停期间非空，恢复时关闭。
	cancelCh      chan struct{}
	abort         context.CancelCauseFunc
	fatal         gu.AtomicError
}

// NewUploader 创建上传控制器。file 由调用方持有，控制器只读取。
func NewUploader(api Api, file io.ReaderAt, filename string, totalSize int64,
	opts ...uploadOption) (*Uploader, error) {

	if api == nil {
		return nil, errors.New("api is nil")
	}
	if file == nil {
		return nil, errors.New("file is nil")
	}
	if len(suitFileId(filename)) <= 0 {
		return nil, errors.New("filename is invalid")
	}
	if totalSize <= 0 {
		return nil, errors.New("totalSize is invalid")
	}

	u := &Uploader{
		api:       api,
		file:      file,
		filename:  filename,
		totalSize: totalSize,
		status:    StatusCreated,
		cancelCh:  make(chan struct{}),
	}

	// 设置参数。
	for _, v := range opts {
		if v == nil {
			continue
		}
		v(u)
	}
	if u.chunkSize <= 0 {
		u.chunkSize = getChunkSize()
	}
	u.totalChunks = countChunks(totalSize, u.chunkSize)

	return u, nil
}

// NewUploaderFromFile 打开磁盘文件并创建上传控制器。上传结束后由调用方调用 Close 释放文件句柄。
func NewUploaderFromFile(api Api, filePath string, opts ...uploadOption) (*Uploader, error) {
	// 获取文件信息。
	fileInfo, err := os.Stat(filePath)
	if err != nil {
		return nil, err
	}

	// 打开文件流。
	fileObj, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}

	u, err := NewUploader(api, fileObj, filepath.Base(filePath), fileInfo.Size(), opts...)
	if err != nil {
		closeIO(fileObj)
		return nil, err
	}
	u.closer = fileObj

	return u, nil
}

// Close 释放控制器持有的文件句柄。只对 NewUploaderFromFile 创建的实例有意义。
func (u *Uploader) Close() error {
	if u.closer != nil {
		return u.closer.Close()
	}
	return nil
}

// Start 执行上传流程，阻塞直到进入终态。每个实例只能调用一次，重复调用返回错误。
//
// 返回 nil 表示进入 Completed，同时 OnComplete 被投递一次；否则进入 Failed 或
// Cancelled，错误被投递给 OnError 一次。两个回调每次 Start 恰好触发其一。
func (u *Uploader) Start(ctx context.Context) error {
	// 防止重入。
	u.lock.Lock()
	if u.started {
		u.lock.Unlock()
		return errors.New("upload already started")
	}
	u.started = true
	ctx, abort := context.WithCancelCause(ctx)
	u.abort = abort
	if u.status == StatusCancelled {
		abort(ErrCancelled)
	}
	u.lock.Unlock()
	defer abort(nil)

	err := u.run(ctx)
	if err != nil {
		u.fatal.Set(err)
		if errors.Is(err, ErrCancelled) {
			u.setStatus(StatusCancelled)
			u.discardSession(ctx)
		} else {
			u.setStatus(StatusFailed)
		}
		if u.onError != nil {
			u.onError(err)
		}
		return err
	}

	return nil
}

// Pause 暂停上传。只设置标志，在分片边界生效，不会中断传输中的分片。幂等。
func (u *Uploader) Pause() {
	u.lock.Lock()
	defer u.lock.Unlock()
	if u.status != StatusTransferring {
		return
	}
	u.status = StatusPaused
	u.resumeCh = make(chan struct{})
}

// Resume 恢复上传。幂等。
func (u *Uploader) Resume() {
	u.lock.Lock()
	defer u.lock.Unlock()
	if u.status != StatusPaused {
		return
	}
	u.status = StatusTransferring
	close(u.resumeCh)
	u.resumeCh = nil
}

// Cancel 取消上传。幂等，可随时从任意协程调用。在途的传输请求会被立即中止，
// 流程以 ErrCancelled 收尾，而不是传输故障。
func (u *Uploader) Cancel() {
	u.lock.Lock()
	defer u.lock.Unlock()
	if u.status.Terminal() {
		return
	}
	u.status = StatusCancelled
	select {
	case <-u.cancelCh:
	default:
		close(u.cancelCh)
	}
	if u.abort != nil {
		u.abort(ErrCancelled)
	}
}

// Status 当前状态。
func (u *Uploader) Status() Status {
	u.lock.Lock()
	defer u.lock.Unlock()
	return u.status
}

// Err 终态错误。成功或未结束时为 nil。
func (u *Uploader) Err() error {
	return u.fatal.Get()
}

// UploadId 会话标识。协商成功前为空串。
func (u *Uploader) UploadId() string {
	u.lock.Lock()
	defer u.lock.Unlock()
	return u.uploadId
}

// Progress 推导当前进度快照。随时可调用，包括在回调内。
func (u *Uploader) Progress() Progress {
	u.lock.Lock()
	defer u.lock.Unlock()
	return makeProgress(u.uploadedBytes, u.totalSize, u.currentChunk, u.totalChunks)
}

// State 导出可持久化的上传状态。
func (u *Uploader) State() *State {
	u.lock.Lock()
	defer u.lock.Unlock()
	return &State{
		UploadId:      u.uploadId,
		UploadedBytes: u.uploadedBytes,
		CurrentChunk:  u.currentChunk,
		Filename:      u.filename,
		TotalSize:     u.totalSize,
	}
}

// Restore 从持久化状态恢复断点。只能在 Start 之前调用，且文件必须与导出时一致。
//
// 恢复后 Start 不再重新协商会话，改为向服务端核对会话与偏移，以服务端为准续传。
func (u *Uploader) Restore(s *State) error {
	if s == nil {
		return errors.New("state is nil")
	}
	u.lock.Lock()
	defer u.lock.Unlock()
	if u.started || u.status != StatusCreated {
		return errors.New("upload already started")
	}
	if s.Filename != u.filename {
		return fmt.Errorf("filename not match: %s", s.Filename)
	}
	if s.TotalSize != u.totalSize {
		return fmt.Errorf("totalSize not match: %d", s.TotalSize)
	}
	if s.UploadedBytes < 0 || s.UploadedBytes > u.totalSize {
		return fmt.Errorf("uploadedBytes is invalid: %d", s.UploadedBytes)
	}
	if s.CurrentChunk < 0 || s.CurrentChunk > u.totalChunks {
		return fmt.Errorf("currentChunk is invalid: %d", s.CurrentChunk)
	}
	u.uploadId = s.UploadId
	u.uploadedBytes = s.UploadedBytes
	u.currentChunk = s.CurrentChunk
	return nil
}

// UploadAll 并发上传多个文件，并发度为 NumRoutines。单个文件内部的分片仍然串行传输。
// 任一上传失败即返回该错误，各上传的结果同时由各自的回调报告。
func UploadAll(ctx context.Context, uploaders ...*Uploader) error {
	run, wait := gu.NewRunner(ctx, NumRoutines, func(ctx context.Context, t *Uploader) error {
		return t.Start(ctx)
	})
	for _, v := range uploaders {
		if v == nil {
			continue
		}
		if err := run(v, false); err != nil {
			return err
		}
	}
	return wait(true)
}

// 执行整个上传流程。
func (u *Uploader) run(ctx context.Context) error {
	// 协商会话。
	if err := u.negotiate(ctx); err != nil {
		return err
	}

	// 串行传输分片。
	if err := u.transferChunks(ctx); err != nil {
		return err
	}

	// 结束上传。
	artifact, err := u.finalize(ctx)
	if err != nil {
		return err
	}
	u.setStatus(StatusCompleted)

	// 完成后投递最终进度与制品元数据。百分比只在 Completed 达到 100。
	if u.onProgress != nil {
		u.onProgress(u.Progress())
	}
	if u.onComplete != nil {
		u.onComplete(artifact)
	}

	return nil
}

// 协商会话。恢复的状态已带会话标识时不再重新协商，改为与服务端核对偏移。
func (u *Uploader) negotiate(ctx context.Context) error {
	if err := u.checkCancelled(ctx); err != nil {
		return err
	}
	u.setStatus(StatusNegotiating)

	u.lock.Lock()
	uploadId := u.uploadId
	u.lock.Unlock()

	if len(uploadId) > 0 {
		info, err := u.api.QuerySession(ctx, u.filename, uploadId)
		if err != nil {
			if u.cancelled() {
				return ErrCancelled
			}
			return err
		}
		if info.UploadId != uploadId {
			return &SessionError{UploadId: uploadId,
				Cause: fmt.Errorf("server session not match: %s", info.UploadId)}
		}
		// 以服务端确认的累计偏移为准续传。
		u.adoptOffset(info.Offset)
		return nil
	}

	id, err := u.api.CreateSession(ctx, u.filename, u.totalSize, u.contentType)
	if err != nil {
		if u.cancelled() {
			return ErrCancelled
		}
		return err
	}
	u.lock.Lock()
	u.uploadId = id
	u.lock.Unlock()

	return nil
}

// 从当前断点开始串行传输分片。
func (u *Uploader) transferChunks(ctx context.Context) error {
	u.setStatus(StatusTransferring)

	u.lock.Lock()
	i := u.currentChunk
	uploadId := u.uploadId
	u.lock.Unlock()

	for ; i < u.totalChunks; i++ {
		// 已取消就中止整个流程。
		if err := u.checkCancelled(ctx); err != nil {
			return err
		}

		// 暂停则阻塞等待恢复或取消。
		if err := u.waitWhilePaused(ctx); err != nil {
			return err
		}

		// 计算分片区间，切出字节。整个流程内存中只驻留这一个分片。
		start, end := chunkRange(i, u.chunkSize, u.totalSize)
		buf := makeBytes(end - start)
		n, err := u.file.ReadAt(buf, start)
		if err != nil && !(errors.Is(err, io.EOF) && n == len(buf)) {
			rollbackBytes(buf)
			return fmt.Errorf("read file chunk at offset %d fail: %w", start, err)
		}

		// 上传分片。
		offset, err := u.api.TransferChunk(ctx, u.filename, uploadId, start, buf)
		rollbackBytes(buf)
		if err != nil {
			if errors.Is(err, ErrCancelled) || u.cancelled() {
				return ErrCancelled
			}
			return err
		}

		// 以服务端返回的累计偏移为准，推进断点。
		u.lock.Lock()
		u.uploadedBytes = offset
		u.currentChunk = i + 1
		u.lock.Unlock()

		// 投递进度通知。最后一个分片的进度在 Completed 后投递。
		if u.onChunkComplete != nil {
			u.onChunkComplete(i+1, u.totalChunks)
		}
		if u.onProgress != nil && offset < u.totalSize {
			u.onProgress(u.Progress())
		}
	}

	return nil
}

// 结束上传。
func (u *Uploader) finalize(ctx context.Context) (json.RawMessage, error) {
	if err := u.checkCancelled(ctx); err != nil {
		return nil, err
	}
	u.setStatus(StatusFinalizing)

	u.lock.Lock()
	uploadId := u.uploadId
	u.lock.Unlock()

	artifact, err := u.api.Finalize(ctx, u.filename, uploadId)
	if err != nil {
		if u.cancelled() {
			return nil, ErrCancelled
		}
		return nil, err
	}

	return artifact, nil
}

// 暂停期间阻塞等待恢复、取消或上下文结束。不轮询。
func (u *Uploader) waitWhilePaused(ctx context.Context) error {
	u.lock.Lock()
	ch := u.resumeCh
	u.lock.Unlock()
	if ch == nil {
		return nil
	}

	select {
	case <-ch:
		return nil
	case <-u.cancelCh:
		return ErrCancelled
	case <-ctx.Done():
		return cancelCause(ctx)
	}
}

// 检查取消标志与上下文。
func (u *Uploader) checkCancelled(ctx context.Context) error {
	if u.cancelled() {
		return ErrCancelled
	}
	if ctx.Err() != nil {
		return cancelCause(ctx)
	}
	return nil
}

func (u *Uploader) cancelled() bool {
	select {
	case <-u.cancelCh:
		return true
	default:
		return false
	}
}

// 推进状态。终态不再变化。
func (u *Uploader) setStatus(s Status) {
	u.lock.Lock()
	defer u.lock.Unlock()
	if u.status.Terminal() {
		return
	}
	u.status = s
}

// 以服务端确认的累计偏移为准修正断点。
func (u *Uploader) adoptOffset(offset int64) {
	if offset < 0 {
		offset = 0
	}
	if offset > u.totalSize {
		offset = u.totalSize
	}
	u.lock.Lock()
	u.uploadedBytes = offset
	if offset >= u.totalSize {
		u.currentChunk = u.totalChunks
	} else {
		u.currentChunk = int(offset / u.chunkSize)
	}
	u.lock.Unlock()
}

// 取消后丢弃服务端会话中已上传的分片。尽力而为，不影响返回结果。
func (u *Uploader) discardSession(ctx context.Context) {
	u.lock.Lock()
	uploadId := u.uploadId
	u.lock.Unlock()
	if len(uploadId) <= 0 {
		return
	}
	noCancelCtx := context.WithoutCancel(ctx)
	go func() {
		printError(u.api.AbortSession(noCancelCtx, u.filename, uploadId))
	}()
}
