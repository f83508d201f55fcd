package domain

import "testing"

func TestPaymentHoldsDepositFunds(t *testing.T) {
	tests := []struct {
		name    string
		payment Payment
		want    bool
	}{
		{"completed deposit", Payment{Type: PaymentTypeDeposit, Status: PaymentStatusCompleted, TransactionID: "pi_1"}, true},
		{"deposit under review", Payment{Type: PaymentTypeDeposit, Status: PaymentStatusNeedsReview, TransactionID: "pi_1"}, true},
		{"pending deposit with transaction", Payment{Type: PaymentTypeDeposit, Status: PaymentStatusPending, TransactionID: "pi_1"}, true},
		{"pending deposit without transaction", Payment{Type: PaymentTypeDeposit, Status: PaymentStatusPending}, false},
		{"refunded deposit", Payment{Type: PaymentTypeDeposit, Status: PaymentStatusRefunded, TransactionID: "pi_1"}, false},
		{"failed deposit", Payment{Type: PaymentTypeDeposit, Status: PaymentStatusFailed, TransactionID: "pi_1"}, false},
		{"completed final payment", Payment{Type: PaymentTypeFinal, Status: PaymentStatusCompleted, TransactionID: "pi_2"}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.payment.HoldsDepositFunds(); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}
