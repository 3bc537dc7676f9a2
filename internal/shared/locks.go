package shared

import "fmt"

// IntegrityLockKey builds the redis key guarding one company's integrity run.
func IntegrityLockKey(company string) string {
	return fmt.Sprintf("ledger:integrity:%s:lock", company)
}
