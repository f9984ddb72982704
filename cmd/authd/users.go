package main

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/platepal/authcore"
)

const (
	userKeyPrefix  = "usr:"
	emailKeyPrefix = "usr:e:"
)

// redisUsers is a Redis-hash user store behind the engine's UserProvider
// seam. A production deployment would point the seam at its primary user
// database instead.
type redisUsers struct {
	client redis.UniversalClient
}

func newRedisUsers(client redis.UniversalClient) *redisUsers {
	return &redisUsers{client: client}
}

func (s *redisUsers) FindByEmail(ctx context.Context, email string) (authcore.UserRecord, error) {
	id, err := s.client.Get(ctx, emailKeyPrefix+email).Result()
	if errors.Is(err, redis.Nil) {
		return authcore.UserRecord{}, authcore.ErrUserNotFound
	}
	if err != nil {
		return authcore.UserRecord{}, err
	}
	return s.FindByID(ctx, id)
}

func (s *redisUsers) FindByID(ctx context.Context, id string) (authcore.UserRecord, error) {
	fields, err := s.client.HGetAll(ctx, userKeyPrefix+id).Result()
	if err != nil {
		return authcore.UserRecord{}, err
	}
	if len(fields) == 0 {
		return authcore.UserRecord{}, authcore.ErrUserNotFound
	}
	return authcore.UserRecord{
		ID:           id,
		Name:         fields["name"],
		Email:        fields["email"],
		PasswordHash: fields["hash"],
		Status:       authcore.AccountStatus(fields["status"]),
	}, nil
}

func (s *redisUsers) Create(ctx context.Context, in authcore.CreateUserInput) (authcore.UserRecord, error) {
	id := uuid.NewString()

	// The email index doubles as the uniqueness guard.
	ok, err := s.client.SetNX(ctx, emailKeyPrefix+in.Email, id, 0).Result()
	if err != nil {
		return authcore.UserRecord{}, err
	}
	if !ok {
		return authcore.UserRecord{}, authcore.ErrAccountExists
	}

	if err := s.client.HSet(ctx, userKeyPrefix+id,
		"name", in.Name,
		"email", in.Email,
		"hash", in.PasswordHash,
		"status", string(in.Status),
	).Err(); err != nil {
		s.client.Del(ctx, emailKeyPrefix+in.Email)
		return authcore.UserRecord{}, err
	}

	return authcore.UserRecord{
		ID:           id,
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: in.PasswordHash,
		Status:       in.Status,
	}, nil
}

func (s *redisUsers) SetStatus(ctx context.Context, id string, status authcore.AccountStatus) error {
	return s.setField(ctx, id, "status", string(status))
}

func (s *redisUsers) SetPasswordHash(ctx context.Context, id string, hash string) error {
	return s.setField(ctx, id, "hash", hash)
}

func (s *redisUsers) setField(ctx context.Context, id, field, value string) error {
	exists, err := s.client.Exists(ctx, userKeyPrefix+id).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return authcore.ErrUserNotFound
	}
	return s.client.HSet(ctx, userKeyPrefix+id, field, value).Err()
}
