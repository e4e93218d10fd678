// retry.go — параметризованная retry-политика для lookup-пути.
// Ledger eventually consistent: запись может быть не видна чтению
// сразу, поэтому lookup повторяется ограниченное число раз.
package ledger

import "time"

// RetryPolicy — политика повторов lookup.
type RetryPolicy struct {
	// MaxAttempts — максимальное количество попыток (>= 1)
	MaxAttempts int
	// Delay — фиксированная пауза между попытками
	Delay time.Duration
}

// DefaultRetryPolicy — политика по умолчанию: 3 попытки с паузой 2s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Delay: 2 * time.Second}
}

// SleepFunc — функция паузы. В тестах подменяется fake clock-ом,
// чтобы не спать реальное время.
type SleepFunc func(d time.Duration)
