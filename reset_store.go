package authcore

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	resetKeyPrefix       = "apr"
	resetRecordVersionV1 = 1
)

var (
	errResetNotFound         = errors.New("reset record not found")
	errResetExpired          = errors.New("reset record expired")
	errResetConsumed         = errors.New("reset record consumed")
	errResetRedisUnavailable = errors.New("reset redis unavailable")
)

type resetRecord struct {
	UserID    string
	ExpiresAt int64
}

// resetStore holds pending password-reset transactions. The transaction id
// itself is the secret carried in the emailed link, so the record only needs
// the owner and deadline. Consumption is single-winner: the WATCH transaction
// deletes the record and leaves a consumed tombstone for the rest of the
// reset window so replays are distinguishable from unknown ids.
type resetStore struct {
	redis  redis.UniversalClient
	prefix string
}

func newResetStore(redisClient redis.UniversalClient) *resetStore {
	return &resetStore{
		redis:  redisClient,
		prefix: resetKeyPrefix,
	}
}

func (s *resetStore) key(txnID string) string {
	return s.prefix + ":" + txnID
}

func (s *resetStore) consumedKey(txnID string) string {
	return s.prefix + ":c:" + txnID
}

func (s *resetStore) Save(ctx context.Context, txnID string, record *resetRecord, ttl time.Duration) error {
	encoded, err := encodeResetRecord(record)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(txnID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", errResetRedisUnavailable, err)
	}

	return nil
}

// Consume atomically destroys the record and returns it. Exactly one of any
// number of concurrent callers succeeds; the rest observe the tombstone and
// get errResetConsumed.
func (s *resetStore) Consume(ctx context.Context, txnID string, now time.Time) (*resetRecord, error) {
	const maxRetries = 4
	key := s.key(txnID)

	for i := 0; i < maxRetries; i++ {
		var matched *resetRecord

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					consumed, cErr := tx.Exists(ctx, s.consumedKey(txnID)).Result()
					if cErr != nil {
						return cErr
					}
					if consumed == 1 {
						return errResetConsumed
					}
					return errResetNotFound
				}
				return err
			}

			record, err := decodeResetRecord(data)
			if err != nil {
				return err
			}

			if now.Unix() > record.ExpiresAt {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return errResetExpired
			}

			ttl := time.Unix(record.ExpiresAt, 0).Sub(now)
			if ttl <= 0 {
				ttl = time.Second
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				pipe.Set(ctx, s.consumedKey(txnID), record.UserID, ttl)
				return nil
			})
			if err != nil {
				return err
			}

			matched = record
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, errResetNotFound), errors.Is(err, errResetExpired), errors.Is(err, errResetConsumed):
				return nil, err
			default:
				return nil, fmt.Errorf("%w: %v", errResetRedisUnavailable, err)
			}
		}

		return matched, nil
	}

	return nil, errResetNotFound
}

func (s *resetStore) Get(ctx context.Context, txnID string, now time.Time) (*resetRecord, error) {
	data, err := s.redis.Get(ctx, s.key(txnID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errResetNotFound
		}
		return nil, fmt.Errorf("%w: %v", errResetRedisUnavailable, err)
	}

	record, err := decodeResetRecord(data)
	if err != nil {
		return nil, err
	}
	if now.Unix() > record.ExpiresAt {
		return nil, errResetExpired
	}

	return record, nil
}

func encodeResetRecord(record *resetRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(resetRecordVersionV1)

	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}

	if len(record.UserID) > 65535 {
		return nil, errors.New("reset record user id too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.UserID))); err != nil {
		return nil, err
	}
	buf.WriteString(record.UserID)

	return buf.Bytes(), nil
}

func decodeResetRecord(data []byte) (*resetRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != resetRecordVersionV1 {
		return nil, errors.New("invalid reset record version")
	}

	record := &resetRecord{}

	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	var userIDLen uint16
	if err := binary.Read(reader, binary.BigEndian, &userIDLen); err != nil {
		return nil, err
	}

	userID := make([]byte, userIDLen)
	if _, err := io.ReadFull(reader, userID); err != nil {
		return nil, err
	}
	record.UserID = string(userID)

	return record, nil
}
