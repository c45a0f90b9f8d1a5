package domain

import (
	"strings"
	"time"
)

// IdempotencyStatus — стадия обработки вызова с idempotency-key.
// Повтор во время processing получает Aborted, после done/failed сохранённый ответ.
type IdempotencyStatus string

const (
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	IdempotencyStatusDone       IdempotencyStatus = "done"
	// IdempotencyStatusFailed — бизнес-отказ (например, нехватка лимита), он тоже воспроизводится.
	IdempotencyStatusFailed IdempotencyStatus = "failed"
)

var idempotencyStatuses = map[IdempotencyStatus]struct{}{
	IdempotencyStatusProcessing: {},
	IdempotencyStatusDone:       {},
	IdempotencyStatusFailed:     {},
}

func (s IdempotencyStatus) Valid() bool {
	_, ok := idempotencyStatuses[s]
	return ok
}

// IdempotencyRecord хранит ответ на денежную операцию (checkout, платёж, выплата),
// чтобы повтор с тем же ключом не списал и не зачёл деньги второй раз.
type IdempotencyRecord struct {
	Key          string
	Method       string
	RequestHash  string
	ResponseBody []byte
	// StatusCode — gRPC код завершения (0 для OK).
	StatusCode int
	Status     IdempotencyStatus
	TTLAt      time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Expired сообщает, что запись можно удалить.
func (r IdempotencyRecord) Expired(now time.Time) bool {
	return !r.TTLAt.IsZero() && !now.Before(r.TTLAt)
}

// Finished — обработка завершена и ответ можно отдавать повторно.
func (r IdempotencyRecord) Finished() bool {
	return r.Status == IdempotencyStatusDone || r.Status == IdempotencyStatusFailed
}

// DefaultIdempotencyTTL применяется, когда вызывающий не задал срок хранения ключа.
const DefaultIdempotencyTTL = 24 * time.Hour

// NormalizeIdempotencyKey обрезает пробелы и отклоняет пустой ключ.
func NormalizeIdempotencyKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrIdempotencyKeyRequired
	}
	return key, nil
}

// NewIdempotencyRecord готовит запись в статусе processing. Нулевой ttlAt
// заменяется на now+DefaultIdempotencyTTL.
func NewIdempotencyRecord(key, method, requestHash string, ttlAt, now time.Time) (IdempotencyRecord, error) {
	key, err := NormalizeIdempotencyKey(key)
	if err != nil {
		return IdempotencyRecord{}, err
	}
	requestHash = strings.TrimSpace(requestHash)
	if requestHash == "" {
		return IdempotencyRecord{}, ErrIdempotencyRequestHashRequired
	}
	if ttlAt.IsZero() {
		ttlAt = now.Add(DefaultIdempotencyTTL)
	}
	return IdempotencyRecord{
		Key:         key,
		Method:      method,
		RequestHash: requestHash,
		Status:      IdempotencyStatusProcessing,
		TTLAt:       ttlAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Conflict сравнивает занятый ключ с новым вызовом: тот же метод и тело дают
// ErrIdempotencyKeyAlreadyExists, иначе ErrIdempotencyHashMismatch.
func (r IdempotencyRecord) Conflict(method, requestHash string) error {
	if r.Method != method || r.RequestHash != requestHash {
		return ErrIdempotencyHashMismatch
	}
	return ErrIdempotencyKeyAlreadyExists
}
