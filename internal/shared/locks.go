package shared

import "fmt"

// InventoryLockKey builds redis keys for per-owner inventory critical sections.
func InventoryLockKey(ownerID string) string {
	return fmt.Sprintf("inventory:owner:%s:lock", ownerID)
}
