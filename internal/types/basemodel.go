package types

import (
	"context"
	"time"
)

// BaseModel carries the audit columns shared by every persisted record
type BaseModel struct {
	TenantID  string    `db:"tenant_id" json:"tenant_id" dynamodbav:"tenant_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at" dynamodbav:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at" dynamodbav:"updated_at"`
	CreatedBy string    `db:"created_by" json:"created_by" dynamodbav:"created_by"`
	UpdatedBy string    `db:"updated_by" json:"updated_by" dynamodbav:"updated_by"`
}

func GetDefaultBaseModel(ctx context.Context) BaseModel {
	now := time.Now().UTC()
	return BaseModel{
		TenantID:  GetTenantID(ctx),
		CreatedAt: now,
		UpdatedAt: now,
		CreatedBy: GetUserID(ctx),
		UpdatedBy: GetUserID(ctx),
	}
}
