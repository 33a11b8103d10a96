// Package domain contains the persisted job model of the recurring queue.
package domain

import (
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// QueueName is the queue every recurring job is placed on.
const QueueName = "recurring"

type JobType string

const (
	JobTypeOrderClose           JobType = "order_close"
	JobTypeOrderRenew           JobType = "order_renew"
	JobTypeSubscriptionActivate JobType = "subscription_activate"
)

type JobState string

const (
	JobStateQueued     JobState = "queued"
	JobStateProcessing JobState = "processing"
	JobStateSuccess    JobState = "success"
	JobStateFailure    JobState = "failure"
)

// Job is a unit of asynchronous work.
type Job struct {
	ID          snowflake.ID   `json:"id" gorm:"primaryKey"`
	Queue       string         `json:"queue" gorm:"type:text;not null"`
	Type        JobType        `json:"type" gorm:"type:text;not null"`
	Payload     datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	State       JobState       `json:"state" gorm:"type:text;not null"`
	Attempts    int            `json:"attempts" gorm:"not null;default:0"`
	Message     *string        `json:"message,omitempty" gorm:"type:text"`
	LeaseToken  *string        `json:"-" gorm:"type:text"`
	AvailableAt time.Time      `json:"available_at" gorm:"not null"`
	ClaimedAt   *time.Time     `json:"claimed_at,omitempty"`
	ProcessedAt *time.Time     `json:"processed_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time      `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Job) TableName() string { return "jobs" }

// OrderPayload identifies the order of an order_close or order_renew job.
type OrderPayload struct {
	OrderID snowflake.ID `json:"order_id"`
}

// SubscriptionPayload identifies the subscription of a subscription_activate job.
type SubscriptionPayload struct {
	SubscriptionID snowflake.ID `json:"subscription_id"`
}

func NewOrderCloseJob(orderID snowflake.ID) Job {
	return newJob(JobTypeOrderClose, OrderPayload{OrderID: orderID})
}

func NewOrderRenewJob(orderID snowflake.ID) Job {
	return newJob(JobTypeOrderRenew, OrderPayload{OrderID: orderID})
}

func NewSubscriptionActivateJob(subscriptionID snowflake.ID) Job {
	return newJob(JobTypeSubscriptionActivate, SubscriptionPayload{SubscriptionID: subscriptionID})
}

func newJob(jobType JobType, payload any) Job {
	// Payloads are plain structs of ids, marshalling cannot fail.
	raw, _ := json.Marshal(payload)
	return Job{
		Queue:   QueueName,
		Type:    jobType,
		Payload: datatypes.JSON(raw),
		State:   JobStateQueued,
	}
}

// DecodePayload unmarshals the job payload into dst.
func (j Job) DecodePayload(dst any) error {
	if len(j.Payload) == 0 {
		return ErrInvalidPayload
	}
	if err := json.Unmarshal(j.Payload, dst); err != nil {
		return ErrInvalidPayload
	}
	return nil
}

// Result is what a handler reports for one job.
type Result struct {
	State   JobState
	Message string
}

func Success() Result {
	return Result{State: JobStateSuccess}
}

func Failure(message string) Result {
	return Result{State: JobStateFailure, Message: message}
}

func (r Result) Succeeded() bool {
	return r.State == JobStateSuccess
}
