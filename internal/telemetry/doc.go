// Package telemetry — логирование и метрики.
//
// Включает:
//   - logging.go — настройка slog из переменных окружения
//   - metrics.go — Prometheus метрики orchestrator'а
package telemetry
