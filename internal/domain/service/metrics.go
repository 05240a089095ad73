// Package service defines the interfaces for domain services.
package service

import (
	"time"
)

// KeyMetrics defines the interface for collecting key lifecycle metrics.
// This abstraction allows the application layer to remain independent of the specific monitoring implementation (e.g., Prometheus).
// KeyMetrics 定义了收集密钥生命周期指标的接口。
// 这种抽象使应用层能够独立于具体的监控实现（例如 Prometheus）。
type KeyMetrics interface {
	// RecordKeyGeneration records one generation attempt and how long it took.
	// RecordKeyGeneration 记录一次生成尝试及其耗时。
	RecordKeyGeneration(success bool, duration time.Duration)

	// RecordPublicKeyRead records a public key read, noting whether it hit an existing key.
	// RecordPublicKeyRead 记录一次公钥读取，并标明是否命中已有密钥。
	RecordPublicKeyRead(existing bool)

	// RecordKeyDeletion records a successful delete request.
	// RecordKeyDeletion 记录一次成功的删除请求。
	RecordKeyDeletion()

	// RecordAccessDenied records a refused request by reason (unauthenticated, forbidden).
	// RecordAccessDenied 按原因记录被拒绝的请求。
	RecordAccessDenied(reason string)

	// RecordStorageError records a repository failure by operation.
	// RecordStorageError 按操作记录仓库故障。
	RecordStorageError(operation string)
}

// NoopKeyMetrics discards every observation.
type NoopKeyMetrics struct{}

func (NoopKeyMetrics) RecordKeyGeneration(bool, time.Duration) {}
func (NoopKeyMetrics) RecordPublicKeyRead(bool)                {}
func (NoopKeyMetrics) RecordKeyDeletion()                      {}
func (NoopKeyMetrics) RecordAccessDenied(string)               {}
func (NoopKeyMetrics) RecordStorageError(string)               {}
