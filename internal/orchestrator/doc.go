// Package orchestrator управляет жизненным циклом проектов.
//
// Включает:
//   - orchestrator.go — Orchestrator, интерфейсы хранилищ, диспетчер очереди
//   - state.go        — in-memory состояние активного проекта
//   - runner.go       — цикл выполнения шагов одного проекта
//   - control.go      — операции оператора (pause, approve, retry, ...)
//   - recovery.go     — реконсиляция осиротевших RUNNING после рестарта
//   - errors.go       — ошибки операций
//
// БД — единственный источник истины о статусах. In-memory состояние —
// только кэш выполнения: после рестарта оно восстанавливается из
// step_runs, а осиротевшие RUNNING записи переводятся в FAILED.
package orchestrator
