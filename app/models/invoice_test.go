package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInvoiceIsPaid(t *testing.T) {
	assert.True(t, (&Invoice{Status: InvoiceStatusPaid}).IsPaid())
	assert.False(t, (&Invoice{Status: InvoiceStatusPaymentFailed}).IsPaid())
	assert.False(t, (&Invoice{Status: InvoiceStatusOpen}).IsPaid())
}
