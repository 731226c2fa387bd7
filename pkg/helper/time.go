package helper

import (
	"time"
)

func AfterNow(years int, months int, days int) time.Time {
	return time.Now().UTC().Truncate(time.Hour*24).AddDate(years, months, days)
}
