package subscriptions

import "errors"

var (
	// ErrSubscriptionNotFound is returned when no subscription matches the id.
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrNoActiveSubscription is returned when a patient has no active subscription.
	ErrNoActiveSubscription = errors.New("no active subscription found")

	// ErrAlreadySubscribed is returned when a patient already has an active subscription.
	ErrAlreadySubscribed = errors.New("patient already has an active subscription")

	// ErrLimitExceeded is returned when the plan's monthly visit allowance is used up.
	ErrLimitExceeded = errors.New("monthly visit limit reached")

	// ErrInvalidPlan is returned when the plan id is not a subscription plan in the catalog.
	ErrInvalidPlan = errors.New("invalid plan id")
)
