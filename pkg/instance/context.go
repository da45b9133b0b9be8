package instance

import (
	"context"
	"fmt"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey string

const (
	instanceIDKey contextKey = "instance_id"
	userIDKey     contextKey = "user_id"
)

// ServiceUserID is the creator recorded for events triggered by the system
// itself rather than an end user.
const ServiceUserID = "system"

// WithInstanceID adds the instance ID to the context.
func WithInstanceID(ctx context.Context, instanceID string) context.Context {
	return context.WithValue(ctx, instanceIDKey, instanceID)
}

// InstanceID retrieves the instance ID from the context.
func InstanceID(ctx context.Context) (string, error) {
	instanceID, ok := ctx.Value(instanceIDKey).(string)
	if !ok || instanceID == "" {
		return "", fmt.Errorf("instance ID not found in context")
	}
	return instanceID, nil
}

// MustInstanceID retrieves the instance ID from the context or panics.
func MustInstanceID(ctx context.Context) string {
	instanceID, err := InstanceID(ctx)
	if err != nil {
		panic(err)
	}
	return instanceID
}

// WithUserID adds the calling user's ID to the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserID retrieves the calling user's ID, defaulting to the service user.
func UserID(ctx context.Context) string {
	userID, ok := ctx.Value(userIDKey).(string)
	if !ok || userID == "" {
		return ServiceUserID
	}
	return userID
}
