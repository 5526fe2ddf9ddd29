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

type ChunkTransferor interface {
	// TransferChunk 上传一个分片，返回服务端确认的累计字节偏移。
	//
	// 内部按指数退避重试：首次失败后最多追加 MaxRetries 次尝试，第 k 次重试前等待
	// RetryDelay*2^(k-1)。每次尝试前检查取消，包括第一次；重试期间被取消则立即退出，
	// 返回取消原因而不是传输故障。用尽所有尝试后返回聚合的 *ChunkTransferError。
	TransferChunk(ctx context.Context, filename, uploadId string, offset int64, chunk []byte) (int64, error)
}
