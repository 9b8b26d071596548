// Package api реализует HTTP API сервера Montage.
//
// API построено на стандартном net/http с routing через ServeMux
// (Go 1.22+ path patterns). Все ответы в JSON, ошибки имеют
// унифицированный формат {"error": {"code": "...", "message": "..."}}.
//
// Группы endpoint'ов:
//   - /api/v1/catalog    — каталог определений шагов
//   - /api/v1/pipelines  — pipelines, узлы и автопроводка
//   - /api/v1/projects   — проекты и операции оператора
package api
