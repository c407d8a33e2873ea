package db

import (
	"time"

	"github.com/sqlc-dev/pqtype"
)

type ReelboardDocument struct {
	DocKey    string                `json:"doc_key"`
	Body      pqtype.NullRawMessage `json:"body"`
	Revision  int64                 `json:"revision"`
	UpdatedAt time.Time             `json:"updated_at"`
}
