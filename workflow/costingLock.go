package workflow

import (
	"fmt"

	"gorm.io/gorm"
)

// AcquireCostingLock serializes cost mutation per business across instances using MySQL advisory locks.
// NOTE: GET_LOCK is connection-scoped, so this must be called on the same *gorm.DB that will do the mutating transaction.
func AcquireCostingLock(tx *gorm.DB, businessId string) error {
	lockName := fmt.Sprintf("costing:%s", businessId)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire costing lock for business_id=%s", businessId)
	}
	return nil
}

func ReleaseCostingLock(tx *gorm.DB, businessId string) {
	lockName := fmt.Sprintf("costing:%s", businessId)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}
