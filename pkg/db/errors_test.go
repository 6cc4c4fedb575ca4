package db

import (
	"errors"
	"testing"
)

func TestIsUniqueViolationByConstraintName(t *testing.T) {
	err := errors.New(`duplicate key value violates unique constraint "uq_payment_records_stripe_invoice_id"`)

	if !IsUniqueViolation(err, "uq_payment_records_stripe_invoice_id") {
		t.Fatal("expected match on constraint name")
	}
	if IsUniqueViolation(err, "uq_payout_accounts_mentor_id") {
		t.Fatal("expected no match on a different constraint")
	}
}

func TestIsUniqueViolationGeneric(t *testing.T) {
	cases := []error{
		errors.New(`duplicate key value violates unique constraint "anything"`),
		errors.New("UNIQUE constraint failed: purchases.checkout_session_id"),
	}
	for _, err := range cases {
		if !IsUniqueViolation(err, "") {
			t.Fatalf("expected generic match for %v", err)
		}
	}

	if IsUniqueViolation(nil, "") {
		t.Fatal("nil error is never a violation")
	}
	if IsUniqueViolation(errors.New("connection refused"), "") {
		t.Fatal("unrelated errors are not violations")
	}
}
