// Package ident generates and validates locally scoped queue identifiers.
package ident

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Queue id format: <prefix>_<epochms>_<alnum>, e.g. sale_1735689600000_a3f9c1d2.
// The timestamp keeps ids roughly monotonic; the random suffix keeps them
// unique within one millisecond.
var queueIDRegex = regexp.MustCompile(`^(sale|op)_\d+_[0-9a-zA-Z]+$`)

const (
	prefixSale      = "sale"
	prefixOperation = "op"
)

// NewSaleID generates a pending-sale id.
func NewSaleID() string {
	return newQueueID(prefixSale)
}

// NewOperationID generates a pending-operation id.
func NewOperationID() string {
	return newQueueID(prefixOperation)
}

func newQueueID(prefix string) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return fmt.Sprintf("%s_%d_%s", prefix, time.Now().UnixMilli(), suffix)
}

// IsValid checks whether a string is a well-formed queue id.
func IsValid(s string) bool {
	return queueIDRegex.MatchString(s)
}

// Validate returns an error if the string is not a well-formed queue id.
func Validate(s string) error {
	if !IsValid(s) {
		return fmt.Errorf("invalid queue id format: %q", s)
	}
	return nil
}
