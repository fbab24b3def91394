// Package txverify validates an unsigned transaction before any wallet is
// asked to sign it. Failure aborts the flow without launching a wallet.
package txverify

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Verify decodes a base64-serialized transaction and checks it is a sane
// signing candidate: parseable, not yet signed, and (when expectedFeePayer is
// set) paid for by the expected address. An empty expectedFeePayer skips the
// fee-payer check.
func Verify(unsignedTxBase64, expectedFeePayer string) error {
	tx, err := solana.TransactionFromBase64(unsignedTxBase64)
	if err != nil {
		return fmt.Errorf("decode transaction: %w", err)
	}

	msg := &tx.Message
	if len(msg.AccountKeys) == 0 {
		return fmt.Errorf("transaction has no accounts")
	}
	if msg.Header.NumRequiredSignatures == 0 {
		return fmt.Errorf("transaction requires no signatures")
	}
	if len(msg.Instructions) == 0 {
		return fmt.Errorf("transaction has no instructions")
	}

	for _, sig := range tx.Signatures {
		if !sig.IsZero() {
			return fmt.Errorf("transaction is already signed")
		}
	}

	if expectedFeePayer != "" {
		expected, err := solana.PublicKeyFromBase58(expectedFeePayer)
		if err != nil {
			return fmt.Errorf("invalid expected fee payer: %w", err)
		}
		// The fee payer is always the first required signer.
		if !msg.AccountKeys[0].Equals(expected) {
			return fmt.Errorf("fee payer mismatch: transaction pays from %s, expected %s",
				msg.AccountKeys[0], expected)
		}
	}

	return nil
}
