package shared

import "fmt"

// ScheduleLockKey builds redis keys serialising schedule mutations for
// one machine on one day.
func ScheduleLockKey(machineID int64, day string) string {
	return fmt.Sprintf("schedule:machine:%d:%s:lock", machineID, day)
}
