package services

import "strconv"

// Gateway transaction ids are numeric; installment and payment rows store
// them as strings.
func formatTransactionID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func parseTransactionID(s string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
