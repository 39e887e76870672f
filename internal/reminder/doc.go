// Package reminder is the scheduling core of skeddy.
//
// Flow:
//
//	inbound text -> Intake -> Extractor -> Store.Add
//	Scheduler tick -> Store (claim due) -> Dispatcher -> Store (mark sent / release)
//	Scheduler tick -> Store (evict sent reminders past the retention window)
//
// All state is in memory and lives for the lifetime of the process.
package reminder
