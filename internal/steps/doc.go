// Package steps содержит исполнителей шагов производства контента.
//
// Включает:
//   - step.go     — интерфейс Executor, Request/Response
//   - registry.go — реестр исполнителей по имени
//   - prompt.go   — генерация текста через LLM API
//   - fetch.go    — загрузка исходного материала по HTTP
//   - manual.go   — шаг, выполняемый человеком
//
// Исполнитель получает входы, собранные orchestrator'ом по соединениям
// pipeline, и возвращает выходы, которые станут входами следующих шагов.
package steps
