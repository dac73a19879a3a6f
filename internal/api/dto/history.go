package dto

import (
	"github.com/acctportal/billingcore/internal/domain/history"
	"github.com/acctportal/billingcore/internal/domain/payment"
	"github.com/acctportal/billingcore/internal/types"
)

type ListHistoryResponse = types.ListResponse[*history.Record]

type ListPaymentsResponse = types.ListResponse[*payment.Payment]
