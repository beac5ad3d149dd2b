// Package worker выполняет подачи BOM, поставленные в очередь.
//
// Worker потребляет projects.submitted, прогоняет каждую подачу через
// flow.Engine и учитывает завершённые проекты в базе знаний.
// Прерванные падением процесса проекты продолжаются через Engine.Resume.
//
//	w, err := worker.New(worker.Config{
//	    Engine:  engine,
//	    Pending: projectRepo,
//	    History: knowledgeStore,
//	    Conn:    mqConn,
//	    Logger:  logger,
//	})
//	if err != nil {
//	    return err
//	}
//	if err := w.Start(ctx); err != nil {
//	    return err
//	}
//	defer w.Stop()
//
// Ошибки хранилища приводят к одной повторной доставке, после чего
// подача уходит в DLQ. Некорректные BOM подтверждаются и не повторяются.
package worker
