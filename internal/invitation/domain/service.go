package domain

import (
	"context"
	"errors"

	catalogdomain "github.com/smallbiznis/boxoffice/internal/catalog/domain"
	orderdomain "github.com/smallbiznis/boxoffice/internal/order/domain"
)

// IssueRequest describes complimentary tickets handed out by an operator.
type IssueRequest struct {
	Customer orderdomain.Customer        `json:"customer"`
	Lines    []catalogdomain.LineRequest `json:"items"`
	Language string                      `json:"language"`
	Note     string                      `json:"note"`
	Operator string                      `json:"-"`
}

type Service interface {
	Issue(context.Context, IssueRequest) (orderdomain.Order, error)
}

var (
	ErrInvalidNote     = errors.New("invalid_note")
	ErrInvalidOperator = errors.New("invalid_operator")
)
