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

// Progress 上传进度快照。由计数器按需推导，不做缓存，随时可以重算。
type Progress struct {
	// UploadedBytes 服务端已确认收到的累计字节数。
	UploadedBytes int64
	// TotalBytes 文件总字节数。
	TotalBytes int64
	// Percentage 进度百分比，0 到 100。
	Percentage float64
	// CurrentChunk 下一个待传输的分片序号（从 0 开始），所有分片完成后等于 TotalChunks。
	CurrentChunk int
	// TotalChunks 分片总数。
	TotalChunks int
	// BytesRemaining 剩余字节数。
	BytesRemaining int64
	// Complete 所有字节是否都已被服务端确认。
	Complete bool
}

// 由计数器推导进度快照。
func makeProgress(uploadedBytes, totalBytes int64, currentChunk, totalChunks int) Progress {
	p := Progress{
		UploadedBytes: uploadedBytes,
		TotalBytes:    totalBytes,
		CurrentChunk:  currentChunk,
		TotalChunks:   totalChunks,
	}
	if totalBytes > 0 {
		p.Percentage = float64(uploadedBytes) / float64(totalBytes) * 100
	}
	if remaining := totalBytes - uploadedBytes; remaining > 0 {
		p.BytesRemaining = remaining
	}
	p.Complete = uploadedBytes >= totalBytes
	return p
}
