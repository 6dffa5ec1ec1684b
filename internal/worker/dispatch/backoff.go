package dispatch

import "time"

const (
	// initialBackoff は指数バックオフの初回遅延（30秒）。
	initialBackoff = 30 * time.Second
	// maxBackoff は指数バックオフの最大遅延（1時間）。
	maxBackoff = time.Hour
	// defaultMaxAttempts は終端の失敗にするまでの最大試行回数。
	defaultMaxAttempts = 5
)

// CalculateBackoff は試行回数に基づいて指数バックオフ遅延を計算する。
// 初回30秒、2倍ずつ増加、最大1時間。attemptCountは完了した試行の回数。
func CalculateBackoff(attemptCount int) time.Duration {
	delay := initialBackoff
	for i := 1; i < attemptCount; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}
