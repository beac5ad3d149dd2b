// Package scheduler подаёт BOM на повторную проверку по cron-расписанию.
//
// Расписания задаются в конфигурации ([[schedules]]). Каждый тик
// подаёт расписания, время которых подошло, через Submitter: в очередь
// (QueueSubmitter) или прямо в движок (EngineSubmitter).
//
//	sched, err := scheduler.New(scheduler.Config{
//	    Schedules: cfg.Schedules,
//	    Submitter: scheduler.QueueSubmitter{Publisher: publisher},
//	    Leader:    scheduler.NewPGLeader(pool, scheduler.LockKey),
//	    Logger:    logger,
//	}, time.Now())
//	if err != nil {
//	    return err
//	}
//	return sched.Run(ctx)
//
// Несколько экземпляров безопасны: тик выполняет только держатель
// pg_try_advisory_lock.
package scheduler
