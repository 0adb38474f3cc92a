package models

import (
	"context"
	"encoding/json"
	"time"

	"bitbucket.org/mmdatafocus/recipes_backend/config"
	"bitbucket.org/mmdatafocus/recipes_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditMessageRecord is the transactional outbox for audit events: the row is
// written inside the mutating transaction, publishing to Pub/Sub happens
// asynchronously after commit (see workflow.OutboxDispatcher).
type AuditMessageRecord struct {
	ID            int                `gorm:"primary_key;index:idx_audit_outbox_dispatch,priority:3" json:"id"`
	BusinessId    string             `gorm:"size:64;not null;index" json:"business_id"`
	OccurredAt    time.Time          `gorm:"index;not null" json:"occurred_at"`
	ReferenceId   int                `json:"reference_id"`
	ReferenceType AuditReferenceType `gorm:"type:enum('II','PH','SU','RC','RI','SS')" json:"reference_type"`
	Action        AuditAction        `gorm:"type:enum('C','U','D')" json:"action"`
	OldObj        []byte             `gorm:"type:blob" json:"old_obj"`
	NewObj        []byte             `gorm:"type:blob" json:"new_obj"`

	PublishStatus    string     `gorm:"size:20;index;not null;default:'PENDING';index:idx_audit_outbox_dispatch,priority:1" json:"publish_status"` // PENDING|PROCESSING|SENT|FAILED|DEAD
	PublishedAt      *time.Time `gorm:"index" json:"published_at"`
	PubSubMessageId  *string    `gorm:"size:255" json:"pubsub_message_id"`
	PublishAttempts  int        `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time `gorm:"index;index:idx_audit_outbox_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time `gorm:"index" json:"locked_at"`
	LockedBy         *string    `gorm:"size:100" json:"locked_by"`
	LastPublishError *string    `gorm:"type:text" json:"last_publish_error"`
	CorrelationId    string     `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// PublishToAudit writes the audit event record inside the caller's DB
// transaction but does NOT publish to Pub/Sub.
func PublishToAudit(ctx context.Context, tx *gorm.DB, businessId string, refId int, refType AuditReferenceType, obj interface{}, oldObj interface{}, action AuditAction) error {

	var objInByte []byte
	var oldObjInByte []byte
	var err error

	if obj != nil {
		objInByte, err = json.Marshal(obj)
		if err != nil {
			return err
		}
	}
	if oldObj != nil {
		oldObjInByte, err = json.Marshal(oldObj)
		if err != nil {
			return err
		}
	}

	record := AuditMessageRecord{
		BusinessId:    businessId,
		OccurredAt:    time.Now().UTC(),
		ReferenceId:   refId,
		ReferenceType: refType,
		Action:        action,
		OldObj:        oldObjInByte,
		NewObj:        objInByte,
		PublishStatus: OutboxPublishStatusPending,
		CorrelationId: correlationIdFromContextOrNew(ctx),
	}
	return tx.Create(&record).Error
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}

func ConvertToAuditMessage(record AuditMessageRecord) config.AuditMessage {
	return config.AuditMessage{
		ID:            record.ID,
		BusinessId:    record.BusinessId,
		OccurredAt:    record.OccurredAt,
		ReferenceId:   record.ReferenceId,
		ReferenceType: string(record.ReferenceType),
		Action:        string(record.Action),
		OldObj:        record.OldObj,
		NewObj:        record.NewObj,
		CorrelationId: record.CorrelationId,
	}
}
