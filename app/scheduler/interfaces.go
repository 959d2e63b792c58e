package scheduler

import (
	"github.com/Everless321/dYm-web/app/bus"
	"github.com/Everless321/dYm-web/app/database"
)

// SchedulerInterface is the recurring-trigger contract consumed by the API
// layer: register/replace or remove triggers, validate expressions, and read
// or clear the scheduler log.
type SchedulerInterface interface {
	ValidateExpression(expr string) bool
	ScheduleTask(task database.Task) error
	UnscheduleTask(taskID int64)
	ScheduleAccount(account database.Account) error
	UnscheduleAccount(accountID int64)
	Logs() []bus.SchedulerLog
	ClearLogs()
}
