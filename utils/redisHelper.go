package utils

import (
	"os"
	"strconv"
	"time"
)

// Only reference data is cached. Counters and stock rows are always read from MySQL under lock.

func GetCacheLifespan() time.Duration {
	lifespan, err := strconv.Atoi(os.Getenv("CACHE_LIFESPAN"))
	if err != nil || lifespan <= 0 {
		lifespan = 1
	}
	return time.Duration(lifespan) * time.Hour
}

// ProductSkuSetKey holds every known sku of a business.
func ProductSkuSetKey(businessId string) string {
	return "ProductSkuSet:" + businessId
}
