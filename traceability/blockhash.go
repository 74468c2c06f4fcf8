package traceability

import "strings"

const blockHashLength = 8

// BlockHash derives the short hash shown next to a stage in the client.
//
// It is the last 8 characters of id+timestamp, uppercased. It is not a
// digest and cannot be used to detect tampering; VerifyIntegrity is the
// only integrity check the ledger offers.
func BlockHash(id, timestamp string) string {
	s := id + timestamp
	if len(s) > blockHashLength {
		s = s[len(s)-blockHashLength:]
	}
	return strings.ToUpper(s)
}
