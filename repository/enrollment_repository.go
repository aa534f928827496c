package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"reconciliation-service/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var ErrUserNotFound = errors.New("user not found")

const userKeyPrefix = "user:"

// EnrollmentRepository reads and writes per-user enrollment records in
// the key-value user store. Each user is one JSON value under
// "user:<email>"; the enrollment payload inside it stays an opaque
// string here and is parsed by the callers that need it.
type EnrollmentRepository struct {
	client *redis.Client
	logger *zap.Logger
}

func NewEnrollmentRepository(client *redis.Client, log *zap.Logger) *EnrollmentRepository {
	return &EnrollmentRepository{
		client: client,
		logger: log,
	}
}

func (r *EnrollmentRepository) getKey(email string) string {
	return userKeyPrefix + email
}

// GetUser returns one user record, or ErrUserNotFound.
func (r *EnrollmentRepository) GetUser(ctx context.Context, email string) (*models.UserRecord, error) {
	data, err := r.client.Get(ctx, r.getKey(email)).Result()
	if err == redis.Nil {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	var user models.UserRecord
	if err := json.Unmarshal([]byte(data), &user); err != nil {
		return nil, fmt.Errorf("decode user %s: %w", email, err)
	}
	return &user, nil
}

// SaveUser writes the user record back. Users are never created here;
// corrective actions only update accounts that already exist.
func (r *EnrollmentRepository) SaveUser(ctx context.Context, user *models.UserRecord) error {
	user.UpdatedAt = time.Now().UTC().Format(time.RFC3339)

	data, err := json.Marshal(user)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.getKey(user.Email), data, 0).Err()
}

// AllUsers scans the whole user keyspace and returns every decodable
// record. Users whose stored value is not valid JSON are skipped and
// counted; one corrupt record must not block reconciliation for
// everyone else.
func (r *EnrollmentRepository) AllUsers(ctx context.Context) ([]models.UserRecord, int, error) {
	var (
		users   []models.UserRecord
		skipped int
		cursor  uint64
	)

	for {
		keys, next, err := r.client.Scan(ctx, cursor, userKeyPrefix+"*", 200).Result()
		if err != nil {
			return nil, 0, fmt.Errorf("scan users: %w", err)
		}

		for _, key := range keys {
			data, err := r.client.Get(ctx, key).Result()
			if err == redis.Nil {
				continue // expired between scan and get
			}
			if err != nil {
				return nil, 0, fmt.Errorf("load user %s: %w", key, err)
			}

			var user models.UserRecord
			if err := json.Unmarshal([]byte(data), &user); err != nil {
				skipped++
				r.logger.Warn("skipping undecodable user record",
					zap.String("key", key),
					zap.Error(err))
				continue
			}
			users = append(users, user)
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return users, skipped, nil
}
